package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// ErrDecode indicates a response declared application/json but the body
// could not be parsed. Callers receive this wrapped with context instead of
// a panic or a silent nil payload.
var ErrDecode = errors.New("failed to decode JSON response")

// HTTPError is a response with a non-success status code. It carries the
// status and the raw body so callers can extract field-level validation
// messages from the server payload.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Body       []byte // raw response body, may be empty
	Message    string // short message, derived from the payload
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Detail returns the most specific message the server provided, in priority
// order: a field-level validation error, then the generic detail/error/
// message keys, then the HTTP status text. Servers in the Django REST style
// report field errors as {"field": ["msg", ...]} and generic errors as
// {"detail": "msg"} or {"non_field_errors": ["msg"]}.
func (e *HTTPError) Detail() string {
	if len(e.Body) > 0 && gjson.ValidBytes(e.Body) {
		payload := gjson.ParseBytes(e.Body)
		if payload.IsObject() {
			if msg := firstFieldError(payload); msg != "" {
				return msg
			}
			for _, key := range []string{"detail", "error", "message"} {
				if v := payload.Get(key); v.Type == gjson.String && v.String() != "" {
					return v.String()
				}
			}
		}
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return e.Error()
}

// firstFieldError picks the first string out of any array-valued key, the
// shape DRF uses for both non_field_errors and per-field validation errors.
func firstFieldError(payload gjson.Result) string {
	if v := payload.Get("non_field_errors.0"); v.Type == gjson.String {
		return v.String()
	}
	var msg string
	payload.ForEach(func(key, value gjson.Result) bool {
		if value.IsArray() {
			if first := value.Get("0"); first.Type == gjson.String && first.String() != "" {
				msg = first.String()
				return false
			}
		}
		return true
	})
	return msg
}

// IsRetryable classifies a request failure for the retry policy. A failure
// with no status code (connection refused, timeout, DNS) is retryable, as is
// a server error (>= 500). Client errors (4xx) are never retried.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// StatusCode extracts the HTTP status from an error, or 0 when the failure
// happened below the HTTP layer.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// ErrorDetail returns the best user-facing message for any request error:
// the server payload's message for an HTTPError, the transport message
// otherwise, and fallback when there is no error at all.
func ErrorDetail(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Detail()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
