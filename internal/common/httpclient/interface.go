package httpclient

// HTTPClientInterface defines the interface for HTTP client
// implementations. Session management and the subscription layer take this
// interface so tests can substitute a double without a network.
type HTTPClientInterface interface {
	// Do makes an HTTP request with the given options, applying the retry
	// policy, and returns the classified response.
	Do(opts RequestOptions) (*Response, error)

	// DoRequest makes an HTTP request with the given options.
	// Returns the response body, Location header (if present), and any
	// error that occurred.
	DoRequest(opts RequestOptions) ([]byte, string, error)

	// Execute makes a request and decodes the response payload by its
	// Content-Type: structured data for JSON, raw text otherwise.
	Execute(opts RequestOptions) (any, error)

	// ListResources lists a collection.
	ListResources(collection string, queryParams map[string]string) ([]byte, error)

	// GetResource retrieves a single entity by id.
	GetResource(collection, id string, queryParams map[string]string) ([]byte, error)

	// CreateResource creates a new entity in a collection.
	CreateResource(collection string, data any) ([]byte, string, error)

	// PatchResource partially updates an entity.
	PatchResource(collection, id string, data any) ([]byte, error)

	// DeleteResource deletes or deactivates an entity.
	DeleteResource(collection, id string) error

	// ResourceAction performs a named lifecycle transition on an entity.
	ResourceAction(collection, id, action string, data any) ([]byte, error)
}

// Verify that HTTPClient implements the HTTPClientInterface.
// This is a compile-time check.
var _ HTTPClientInterface = &HTTPClient{}
