package scrape

import (
	"context"
	"net/http"
	"time"

	"github.com/JakeFAU/pagescrape/internal/extract"
	"github.com/JakeFAU/pagescrape/internal/robots"
)

// FetchRequest describes a single outbound page fetch.
type FetchRequest struct {
	URL string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Status       string // reason phrase, e.g. "Not Found"
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher retrieves a page. Non-2xx responses are returned, not treated as errors.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PolicyGate decides whether a path on an origin may be fetched.
type PolicyGate interface {
	Evaluate(ctx context.Context, origin, path string) robots.Decision
}

// HeadlessDetector decides whether a probe response should be re-fetched with a browser.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Result is the outcome of a successful scrape.
type Result struct {
	URL          string
	CrawlDelay   *float64
	Title        *string
	Headings     []string
	Links        []extract.Link
	UsedHeadless bool
}
