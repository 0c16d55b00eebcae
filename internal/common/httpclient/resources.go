package httpclient

import (
	"net/http"
	"strings"
)

// The service desk API follows a uniform collection convention:
// GET collection/ lists, POST collection/ creates, PATCH collection/{id}/
// partially updates, DELETE collection/{id}/ deletes or deactivates, and
// POST collection/{id}/{action}/ performs a named lifecycle transition.
// The helpers below encode that convention once.

// detailPath builds "collection/{id}/" keeping the API's trailing slash.
func detailPath(collection, id string) string {
	return strings.TrimSuffix(collection, "/") + "/" + strings.Trim(id, "/") + "/"
}

// actionPath builds "collection/{id}/{action}/".
func actionPath(collection, id, action string) string {
	return detailPath(collection, id) + strings.Trim(action, "/") + "/"
}

// ListResources lists a collection. queryParams carries ordering,
// page_size, and arbitrary filters.
// Returns the raw response body; pass it to UnwrapList for the normalized
// item list.
func (c *HTTPClient) ListResources(collection string, queryParams map[string]string) ([]byte, error) {
	body, _, err := c.DoRequest(RequestOptions{
		Method:      http.MethodGet,
		Path:        collection,
		QueryParams: queryParams,
	})
	return body, err
}

// GetResource retrieves a single entity by id.
func (c *HTTPClient) GetResource(collection, id string, queryParams map[string]string) ([]byte, error) {
	body, _, err := c.DoRequest(RequestOptions{
		Method:      http.MethodGet,
		Path:        detailPath(collection, id),
		QueryParams: queryParams,
	})
	return body, err
}

// CreateResource creates a new entity in a collection.
// Returns the response body, Location header, and any error that occurred.
func (c *HTTPClient) CreateResource(collection string, data any) ([]byte, string, error) {
	return c.DoRequest(RequestOptions{
		Method: http.MethodPost,
		Path:   collection,
		Body:   data,
	})
}

// PatchResource partially updates an entity.
func (c *HTTPClient) PatchResource(collection, id string, data any) ([]byte, error) {
	body, _, err := c.DoRequest(RequestOptions{
		Method: http.MethodPatch,
		Path:   detailPath(collection, id),
		Body:   data,
	})
	return body, err
}

// DeleteResource deletes or deactivates an entity.
func (c *HTTPClient) DeleteResource(collection, id string) error {
	_, _, err := c.DoRequest(RequestOptions{
		Method: http.MethodDelete,
		Path:   detailPath(collection, id),
	})
	return err
}

// ResourceAction performs a named lifecycle transition on an entity, such
// as approve, reject, submit, implement, complete, publish, or archive.
// data may be nil for transitions that take no payload.
func (c *HTTPClient) ResourceAction(collection, id, action string, data any) ([]byte, error) {
	body, _, err := c.DoRequest(RequestOptions{
		Method: http.MethodPost,
		Path:   actionPath(collection, id, action),
		Body:   data,
	})
	return body, err
}
