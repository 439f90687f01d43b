package httpclient

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// HttpError represents a non-2xx response. The response body is kept for diagnostics.
type HttpError struct {
	Method     string
	Url        string
	StatusCode int
	Body       string
}

func (e *HttpError) Error() string {
	msg := fmt.Sprintf("%s %s: server responded with %d %s", e.Method, e.Url, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsClientError is true for 4xx responses.
func (e *HttpError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AsHttpError returns the HttpError wrapped in err, if any.
func AsHttpError(err error) (*HttpError, bool) {
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsClientError reports whether err wraps a 4xx response.
func IsClientError(err error) bool {
	httpErr, ok := AsHttpError(err)
	return ok && httpErr.IsClientError()
}

// IsConflict reports whether err wraps a 409 Conflict response.
func IsConflict(err error) bool {
	httpErr, ok := AsHttpError(err)
	return ok && httpErr.StatusCode == http.StatusConflict
}
