// Package scrape runs the single-page pipeline: robots check, page fetch and
// structural extraction.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagescrape/internal/extract"
	"github.com/JakeFAU/pagescrape/internal/metrics"
)

// Outcome labels used for metrics.
const (
	outcomeOK         = "ok"
	outcomeInvalidURL = "invalid_url"
	outcomeBlocked    = "blocked"
	outcomeUpstream   = "upstream_error"
	outcomeError      = "error"
)

// Service composes a PolicyGate, page fetchers and the extractor.
type Service struct {
	gate     PolicyGate
	probe    Fetcher
	headless Fetcher
	detector HeadlessDetector
	logger   *zap.Logger
}

// NewService builds a Service. headless and detector may be nil, in which case
// probe responses are never promoted.
func NewService(
	gate PolicyGate,
	probe Fetcher,
	headless Fetcher,
	detector HeadlessDetector,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gate:     gate,
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger,
	}
}

// Target is a validated scrape target split into its policy scope.
type Target struct {
	URL    *url.URL
	Origin string
	Path   string
}

// ParseTarget validates rawURL as an absolute http(s) URL.
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrInvalidInputURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return Target{}, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidInputURL, rawURL)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return Target{
		URL:    u,
		Origin: scheme + "://" + u.Host,
		Path:   path,
	}, nil
}

// Scrape checks robots.txt, fetches rawURL and extracts its summary.
// Errors are ErrInvalidInputURL, ErrPolicyDenied, *UpstreamError or an
// unexpected fetch failure.
func (s *Service) Scrape(ctx context.Context, rawURL string) (Result, error) {
	result, err := s.scrape(ctx, rawURL)
	metrics.ObserveScrape(outcomeOf(err))
	if err == nil {
		metrics.ObserveLinksExtracted(len(result.Links))
	}
	return result, err
}

func (s *Service) scrape(ctx context.Context, rawURL string) (Result, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return Result{}, err
	}
	logger := s.logger.With(zap.String("url", rawURL))

	decision := s.gate.Evaluate(ctx, target.Origin, target.Path)
	if !decision.Allowed {
		logger.Info("fetch blocked by robots.txt", zap.String("path", target.Path))
		return Result{}, ErrPolicyDenied
	}

	resp, err := s.probe.Fetch(ctx, FetchRequest{URL: target.URL.String()})
	if err != nil {
		return Result{}, fmt.Errorf("fetch page: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Info("upstream returned non-success status", zap.Int("status", resp.StatusCode))
		return Result{}, newUpstreamError(resp)
	}
	resp = s.maybePromote(ctx, logger, target, resp)

	summary := extract.Extract(string(resp.Body), target.Origin)
	logger.Debug("page extracted",
		zap.Int("bytes", len(resp.Body)),
		zap.Int("headings", len(summary.Headings)),
		zap.Int("links", len(summary.Links)),
		zap.Bool("headless", resp.UsedHeadless),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return Result{
		URL:          rawURL,
		CrawlDelay:   decision.CrawlDelay,
		Title:        summary.Title,
		Headings:     summary.Headings,
		Links:        summary.Links,
		UsedHeadless: resp.UsedHeadless,
	}, nil
}

func (s *Service) maybePromote(ctx context.Context, logger *zap.Logger, target Target, probe FetchResponse) FetchResponse {
	if s.headless == nil || s.detector == nil || !s.detector.ShouldPromote(probe) {
		return probe
	}
	rendered, err := s.headless.Fetch(ctx, FetchRequest{URL: target.URL.String()})
	if err != nil {
		logger.Warn("headless fetch failed; using probe body", zap.Error(err))
		metrics.ObserveHeadlessPromotion("failed")
		return probe
	}
	if rendered.StatusCode < 200 || rendered.StatusCode > 299 {
		logger.Warn("headless fetch returned non-success status; using probe body",
			zap.Int("status", rendered.StatusCode))
		metrics.ObserveHeadlessPromotion("failed")
		return probe
	}
	metrics.ObserveHeadlessPromotion("ok")
	return rendered
}

func outcomeOf(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrInvalidInputURL):
		return outcomeInvalidURL
	case errors.Is(err, ErrPolicyDenied):
		return outcomeBlocked
	case errors.As(err, &upstream):
		return outcomeUpstream
	default:
		return outcomeError
	}
}
