package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRobotsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGate_DisallowedPathDenied(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /p\nCrawl-delay: 10\n")
	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())

	decision := gate.Evaluate(context.Background(), srv.URL, "/p")

	require.False(t, decision.Allowed)
	require.Equal(t, OutcomeDenied, decision.Outcome)
	require.NotNil(t, decision.CrawlDelay)
	require.InDelta(t, 10.0, *decision.CrawlDelay, 0)
}

func TestGate_ByteOrderMarkedDocumentEnforced(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, http.StatusOK, "\ufeffUser-agent: *\nDisallow: /p\n")
	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())

	decision := gate.Evaluate(context.Background(), srv.URL, "/p")

	require.False(t, decision.Allowed)
	require.Equal(t, OutcomeDenied, decision.Outcome)
}

func TestGate_UnmatchedPathAllowed(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n")
	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())

	decision := gate.Evaluate(context.Background(), srv.URL, "/public/page")

	require.True(t, decision.Allowed)
	require.Equal(t, OutcomeAllowed, decision.Outcome)
	require.Nil(t, decision.CrawlDelay)
}

func TestGate_NotFoundFailsOpen(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, http.StatusNotFound, "User-agent: *\nDisallow: /\n")
	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())

	for _, path := range []string{"/", "/anything", "/deep/path"} {
		decision := gate.Evaluate(context.Background(), srv.URL, path)
		require.True(t, decision.Allowed)
		require.Nil(t, decision.CrawlDelay)
		require.Equal(t, OutcomeUnavailable, decision.Outcome)
	}
}

func TestGate_ServerErrorFailsOpen(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, http.StatusInternalServerError, "User-agent: *\nDisallow: /\n")
	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())

	decision := gate.Evaluate(context.Background(), srv.URL, "/")

	require.True(t, decision.Allowed)
	require.Equal(t, OutcomeUnavailable, decision.Outcome)
}

func TestGate_UnreachableFailsOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	origin := srv.URL
	srv.Close()

	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())
	decision := gate.Evaluate(context.Background(), origin, "/p")

	require.True(t, decision.Allowed)
	require.Equal(t, OutcomeUnavailable, decision.Outcome)
}

func TestGate_FollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/policies/robots.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/policies/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())
	decision := gate.Evaluate(context.Background(), srv.URL, "/blocked/page")

	require.False(t, decision.Allowed)
}

func TestGate_UsesDefaultUserAgent(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
	}))
	t.Cleanup(srv.Close)

	gate := NewGate(Config{Timeout: time.Second}, zap.NewNop())
	gate.Evaluate(context.Background(), srv.URL+"/", "/")

	require.True(t, strings.HasPrefix(<-agents, "Go-http-client/"))
}

func TestGate_BodyBeyondLimitIgnored(t *testing.T) {
	t.Parallel()

	body := "User-agent: *\nDisallow: /first\n" + strings.Repeat("#", 256) + "\nDisallow: /second\n"
	srv := newRobotsServer(t, http.StatusOK, body)
	gate := NewGate(Config{Timeout: time.Second, MaxBytes: 64}, zap.NewNop())

	require.False(t, gate.Evaluate(context.Background(), srv.URL, "/first").Allowed)
	require.True(t, gate.Evaluate(context.Background(), srv.URL, "/second").Allowed)
}

func TestRetryTransport_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{
		results: []roundTripResult{
			{err: context.DeadlineExceeded},
			{resp: httptest.NewRecorder().Result()},
		},
	}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 2, base.calls)
}

func TestRetryTransport_GivesUpAfterBackoff(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	_, err := transport.RoundTrip(req)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 4, base.calls)
}

func TestRetryTransport_NonTransientNotRetried(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: errors.New("connection refused")}}}
	transport := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	_, err := transport.RoundTrip(req)
	require.Error(t, err)
	require.Equal(t, 1, base.calls)
}

func TestIsTransientTLSError(t *testing.T) {
	t.Parallel()

	require.False(t, isTransientTLSError(nil))
	require.True(t, isTransientTLSError(context.DeadlineExceeded))
	require.True(t, isTransientTLSError(errors.New("net/http: tls: handshake timeout")))
	require.False(t, isTransientTLSError(errors.New("no such host")))
}

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	if len(s.results) == 0 {
		return nil, context.DeadlineExceeded
	}
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	return res.resp, res.err
}
