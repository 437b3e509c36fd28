package scrape

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInputURL marks a target that is not an absolute http(s) URL.
	ErrInvalidInputURL = errors.New("invalid url")
	// ErrPolicyDenied marks a target disallowed by the origin's robots.txt.
	ErrPolicyDenied = errors.New("blocked by robots.txt")
)

// UpstreamError reports a non-2xx status from the target page.
type UpstreamError struct {
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, e.Status)
}

func newUpstreamError(resp FetchResponse) *UpstreamError {
	status := resp.Status
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Status: status}
}
