// Package httpclient provides the single chokepoint for all HTTP calls to
// the service desk REST API. It owns URL construction, body serialization,
// CSRF attachment, retry policy, and error classification. Authentication is
// cookie-based: the opaque session credential lives in the cookie jar
// supplied by a CredentialStore and is never read by application code.
package httpclient

import (
	"bytes"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Configurator defines the interface for providing server configuration.
// Implementations must provide the API base URL and the default retry count.
type Configurator interface {
	GetServerURL() string
	GetDefaultRetries() int
}

// DefaultRetries is the number of extra attempts made after a retryable
// failure when neither the request nor the configuration says otherwise.
const DefaultRetries = 1

// RetryDisabled turns retries off, per request or as the configured
// default.
const RetryDisabled = -1

// mutatingMethods are the methods that require a CSRF token when one is
// present in the credential store.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// RetryPolicy decides whether and how a failed request is reattempted.
// The policy is a value so callers can swap it (for example for exponential
// backoff) without touching the executor.
type RetryPolicy struct {
	Delay       time.Duration    // wait between attempts
	ShouldRetry func(error) bool // classifier over the attempt's error
}

// DefaultRetryPolicy retries network-level failures and 5xx responses with
// a constant 500ms delay. 4xx responses are never retried: the failure is
// the caller's input, and replaying it cannot succeed. The classifier does
// not distinguish idempotent from non-idempotent methods; callers that must
// not replay a mutation set Retries to RetryDisabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:       500 * time.Millisecond,
		ShouldRetry: IsRetryable,
	}
}

// HTTPClient represents a client for making HTTP requests to the service
// desk REST API server. It handles credential transport, request building,
// retries, and response processing.
type HTTPClient struct {
	config     Configurator
	creds      CredentialStore
	httpClient *http.Client
	retry      RetryPolicy
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	DisableCertValidation bool           // if true, skips TLS certificate validation
	Timeout               time.Duration  // per-attempt timeout, zero means no timeout
	Retry                 *RetryPolicy   // overrides DefaultRetryPolicy
	Transport             http.RoundTripper
}

// NewClient creates a new HTTP client using the provided configuration and
// credential store.
func NewClient(config Configurator, creds CredentialStore, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return NewClientWithOptions(config, creds, clientOpts)
}

// NewClientWithOptions creates a new HTTP client using the provided
// configuration, credential store, and options.
func NewClientWithOptions(config Configurator, creds CredentialStore, opts ClientOptions) *HTTPClient {
	httpClient := &http.Client{
		Jar:     creds.Jar(),
		Timeout: opts.Timeout,
	}

	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	} else if opts.DisableCertValidation {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	policy := DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}

	return &HTTPClient{
		config:     config,
		creds:      creds,
		httpClient: httpClient,
		retry:      policy,
	}
}

// RequestOptions contains options for making HTTP requests.
// All fields are optional except Path.
type RequestOptions struct {
	Method      string            // HTTP method, defaults to GET
	Path        string            // endpoint path; absolute URLs pass through unchanged
	QueryParams map[string]string // optional query parameters
	Headers     map[string]string // optional extra headers
	Body        any               // structured payload, serialized to JSON
	RawBody     []byte            // pre-encoded payload, passed through untouched
	ContentType string            // content type for RawBody; never defaulted to JSON
	Retries     int               // extra attempts; zero means the configured default,
	//                               RetryDisabled turns retries off
}

// Response is the classified result of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Location   string
}

// Do makes an HTTP request with the given options, applying the retry
// policy. On a non-success status it returns an *HTTPError carrying the
// status code and the raw server payload.
func (c *HTTPClient) Do(opts RequestOptions) (*Response, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	payload, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, err
	}

	u, err := c.buildURL(opts.Path, opts.QueryParams)
	if err != nil {
		return nil, err
	}

	attempts := c.resolveAttempts(opts.Retries)
	requestID := uuid.NewString()

	var resp *Response
	err = retry.Do(func() error {
		r, attemptErr := c.attempt(method, u, payload, contentType, opts.Headers, requestID)
		if attemptErr != nil {
			return attemptErr
		}
		resp = r
		return nil
	},
		retry.Attempts(attempts),
		retry.Delay(c.retry.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && c.retry.ShouldRetry(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("request_id", requestID).
				Str("method", method).Msg("retrying request")
		}))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoRequest makes an HTTP request with the given options.
// Returns the response body, Location header (if present), and any error
// that occurred.
func (c *HTTPClient) DoRequest(opts RequestOptions) ([]byte, string, error) {
	resp, err := c.Do(opts)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Location, nil
}

// Execute makes a request and classifies the response payload by its
// Content-Type: JSON bodies are decoded into structured data, anything else
// is returned as raw text, and an empty body yields nil. A body that claims
// JSON but does not parse surfaces ErrDecode rather than a panic.
func (c *HTTPClient) Execute(opts RequestOptions) (any, error) {
	resp, err := c.Do(opts)
	if err != nil {
		return nil, err
	}
	return resp.Payload()
}

// attempt performs one network round trip. A transport failure comes back
// as a plain wrapped error (retryable); a status >= 400 comes back as an
// *HTTPError (retryable only for 5xx).
func (c *HTTPClient) attempt(method string, u *url.URL, payload []byte, contentType string, headers map[string]string, requestID string) (*Response, error) {
	var bodyReader *bytes.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, u.String(), bodyReader)
	if err != nil {
		return nil, retry.Unrecoverable(errors.Wrap(err, "failed to create request"))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if mutatingMethods[method] {
		if token, ok := c.creds.CSRFToken(req.URL); ok {
			req.Header.Set("X-CSRFToken", token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	log.Debug().Str("method", method).Str("path", u.Path).
		Int("status", resp.StatusCode).Str("request_id", requestID).
		Msg("request completed")

	if resp.StatusCode >= 400 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: body}
		httpErr.Message = httpErr.Detail()
		return nil, httpErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Location:   resp.Header.Get("Location"),
	}, nil
}

// buildURL joins a relative path to the configured base URL, normalizing
// slashes but preserving a trailing slash on the path. Absolute URLs pass
// through with only query parameters applied.
func (c *HTTPClient) buildURL(p string, queryParams map[string]string) (*url.URL, error) {
	var u *url.URL
	var err error

	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		u, err = url.Parse(p)
		if err != nil {
			return nil, errors.Wrap(err, "invalid request URL")
		}
	} else {
		u, err = url.Parse(c.config.GetServerURL())
		if err != nil {
			return nil, errors.Wrap(err, "invalid server URL")
		}
		base := strings.TrimSuffix(u.Path, "/")
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		u.Path = base + p
	}

	q := u.Query()
	for k, v := range queryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// resolveAttempts converts the per-request retry count into a total attempt
// count for the retry loop. RetryDisabled means one attempt, whether it was
// set on the request or as the configured default.
func (c *HTTPClient) resolveAttempts(retries int) uint {
	if retries == 0 {
		retries = c.config.GetDefaultRetries()
		if retries == 0 {
			retries = DefaultRetries
		}
	}
	if retries < 0 {
		return 1
	}
	return uint(retries) + 1
}

// encodeBody serializes a structured Body to JSON, or passes RawBody
// through untouched. A raw payload never gets a JSON content type forced
// onto it.
func encodeBody(opts RequestOptions) ([]byte, string, error) {
	if opts.RawBody != nil {
		return opts.RawBody, opts.ContentType, nil
	}
	if opts.Body == nil {
		return nil, "", nil
	}
	data, err := jsoniter.Marshal(opts.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to encode request body")
	}
	return data, "application/json", nil
}

// Payload decodes the response body by Content-Type: structured data for
// JSON, raw text otherwise, nil for an empty body.
func (r *Response) Payload() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var payload any
		if err := jsoniter.Unmarshal(r.Body, &payload); err != nil {
			return nil, errors.Wrap(ErrDecode, err.Error())
		}
		return payload, nil
	}
	return string(r.Body), nil
}

// readBody drains a response body.
func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
