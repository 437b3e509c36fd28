package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagescrape/internal/extract"
	"github.com/JakeFAU/pagescrape/internal/robots"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	target, err := ParseTarget("https://Example.com:8443/a/b?q=1#frag")
	require.NoError(t, err)
	require.Equal(t, "https://Example.com:8443", target.Origin)
	require.Equal(t, "/a/b", target.Path)

	target, err = ParseTarget("http://example.com")
	require.NoError(t, err)
	require.Equal(t, "/", target.Path)

	for _, raw := range []string{"", "not a url", "/relative/path", "ftp://example.com/file", "https://", "http://[::1"} {
		_, err := ParseTarget(raw)
		require.ErrorIs(t, err, ErrInvalidInputURL, "raw %q", raw)
	}
}

func TestService_Scrape_Succeeds(t *testing.T) {
	t.Parallel()

	delay := 10.0
	gate := &fakeGate{decision: robots.Decision{Allowed: true, CrawlDelay: &delay}}
	probe := &fakeFetcher{resp: FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<title>Shop</title><h1>Deals</h1><a href="/cart">Cart</a>`),
	}}
	svc := NewService(gate, probe, nil, nil, zap.NewNop())

	result, err := svc.Scrape(context.Background(), "https://shop.test/deals?page=2")

	require.NoError(t, err)
	require.Equal(t, "https://shop.test/deals?page=2", result.URL)
	require.Equal(t, &delay, result.CrawlDelay)
	require.NotNil(t, result.Title)
	require.Equal(t, "Shop", *result.Title)
	require.Equal(t, []string{"Deals"}, result.Headings)
	require.Equal(t, []extract.Link{{Href: "https://shop.test/cart", Text: "Cart"}}, result.Links)
	require.Equal(t, []gateCall{{origin: "https://shop.test", path: "/deals"}}, gate.calls)
	require.Equal(t, []string{"https://shop.test/deals?page=2"}, probe.urls())
}

func TestService_Scrape_InvalidURL(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{}
	svc := NewService(gate, probe, nil, nil, zap.NewNop())

	_, err := svc.Scrape(context.Background(), "::nope")

	require.ErrorIs(t, err, ErrInvalidInputURL)
	require.Empty(t, gate.calls)
	require.Empty(t, probe.urls())
}

func TestService_Scrape_InvalidTargetsDoNotGrowMetricSeries(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeGate{decision: robots.Decision{Allowed: true}}, &fakeFetcher{}, nil, nil, zap.NewNop())
	for i := 0; i < 200; i++ {
		_, err := svc.Scrape(context.Background(), fmt.Sprintf("bogus%d", i))
		require.ErrorIs(t, err, ErrInvalidInputURL)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var series int
	for _, family := range families {
		if family.GetName() != "pagescrape_scrapes_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			series++
			for _, label := range metric.GetLabel() {
				require.Equal(t, "outcome", label.GetName())
			}
		}
	}
	require.Positive(t, series)
	require.LessOrEqual(t, series, 5, "one series per outcome at most")
}

func TestService_Scrape_PolicyDeniedSkipsFetch(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: false, Outcome: robots.OutcomeDenied}}
	probe := &fakeFetcher{}
	svc := NewService(gate, probe, nil, nil, zap.NewNop())

	_, err := svc.Scrape(context.Background(), "https://x.test/p")

	require.ErrorIs(t, err, ErrPolicyDenied)
	require.Empty(t, probe.urls())
}

func TestService_Scrape_UpstreamStatus(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{resp: FetchResponse{StatusCode: http.StatusInternalServerError}}
	svc := NewService(gate, probe, nil, nil, zap.NewNop())

	_, err := svc.Scrape(context.Background(), "https://x.test/p")

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
	require.Equal(t, "Internal Server Error", upstream.Status)
}

func TestService_Scrape_FetchFailure(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
	svc := NewService(gate, probe, nil, nil, zap.NewNop())

	_, err := svc.Scrape(context.Background(), "https://x.test/p")

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPolicyDenied)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, outcomeError, outcomeOf(err))
}

func TestService_Scrape_PromotesToHeadless(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{resp: FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<div id="root"></div>`)}}
	headless := &fakeFetcher{resp: FetchResponse{
		StatusCode:   http.StatusOK,
		Body:         []byte(`<title>Rendered</title>`),
		UsedHeadless: true,
	}}
	svc := NewService(gate, probe, headless, fakeDetector(true), zap.NewNop())

	result, err := svc.Scrape(context.Background(), "https://spa.test/")

	require.NoError(t, err)
	require.True(t, result.UsedHeadless)
	require.NotNil(t, result.Title)
	require.Equal(t, "Rendered", *result.Title)
}

func TestService_Scrape_HeadlessFailureFallsBackToProbe(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{resp: FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<title>Probe</title>`)}}
	headless := &fakeFetcher{err: errors.New("chrome not found")}
	svc := NewService(gate, probe, headless, fakeDetector(true), zap.NewNop())

	result, err := svc.Scrape(context.Background(), "https://spa.test/")

	require.NoError(t, err)
	require.False(t, result.UsedHeadless)
	require.Equal(t, "Probe", *result.Title)
}

func TestService_Scrape_DetectorDeclines(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{decision: robots.Decision{Allowed: true}}
	probe := &fakeFetcher{resp: FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<p>static</p>`)}}
	headless := &fakeFetcher{}
	svc := NewService(gate, probe, headless, fakeDetector(false), zap.NewNop())

	_, err := svc.Scrape(context.Background(), "https://static.test/")

	require.NoError(t, err)
	require.Empty(t, headless.urls())
}

func TestOutcomeOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, outcomeOK, outcomeOf(nil))
	require.Equal(t, outcomeInvalidURL, outcomeOf(ErrInvalidInputURL))
	require.Equal(t, outcomeBlocked, outcomeOf(ErrPolicyDenied))
	require.Equal(t, outcomeUpstream, outcomeOf(&UpstreamError{StatusCode: 503}))
	require.Equal(t, outcomeError, outcomeOf(context.Canceled))
}

type gateCall struct {
	origin string
	path   string
}

type fakeGate struct {
	mu       sync.Mutex
	decision robots.Decision
	calls    []gateCall
}

func (g *fakeGate) Evaluate(_ context.Context, origin, path string) robots.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gateCall{origin: origin, path: path})
	return g.decision
}

type fakeFetcher struct {
	mu        sync.Mutex
	resp      FetchResponse
	err       error
	requested []string
}

func (f *fakeFetcher) Fetch(_ context.Context, request FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, request.URL)
	if f.err != nil {
		return FetchResponse{}, f.err
	}
	return f.resp, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

type fakeDetector bool

func (d fakeDetector) ShouldPromote(FetchResponse) bool {
	return bool(d)
}
