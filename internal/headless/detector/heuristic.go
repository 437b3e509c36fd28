// Package detector decides when a probe response needs headless rendering
// before extraction.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/pagescrape/internal/scrape"
)

// DefaultBodyLengthThreshold is used when NewHeuristic receives zero.
const DefaultBodyLengthThreshold = 2048

// scriptCoveragePercent is the share of a small body that must be script
// content before the page is treated as client-rendered.
const scriptCoveragePercent = 25

// Heuristic promotes empty bodies, single-page-app shells and small,
// script-heavy documents.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-app"),
	[]byte("window.__nuxt__"),
}

// ShouldPromote implements scrape.HeadlessDetector.
func (h *Heuristic) ShouldPromote(resp scrape.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	if len(lower) < h.BodyLengthThreshold && scriptCoverage(lower)*100 >= scriptCoveragePercent*len(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptCoverage counts the bytes of lowercased body that sit inside script
// elements, tags included. An unterminated script covers the rest of the body.
func scriptCoverage(body []byte) int {
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
		covered  int
	)
	rest := body
	for {
		start := bytes.Index(rest, openTag)
		if start < 0 {
			return covered
		}
		end := bytes.Index(rest[start:], closeTag)
		if end < 0 {
			return covered + len(rest) - start
		}
		end += start + len(closeTag)
		covered += end - start
		rest = rest[end:]
	}
}
