package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a response with a status other than 200 OK.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s returned HTTP %d (%s)", e.URL, e.StatusCode, e.Status)
}

// NewHTTPError builds an *HTTPError.
func NewHTTPError(statusCode int, url, status string) error {
	return &HTTPError{StatusCode: statusCode, URL: url, Status: status}
}

// StatusCode returns the status of the first HTTPError in err's chain, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
