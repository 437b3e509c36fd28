package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagescrape/internal/metrics"
)

// DefaultMaxBytes caps how much of a robots.txt body is parsed.
const DefaultMaxBytes = 512 * 1024

// Outcome labels a policy evaluation for logs and metrics.
type Outcome string

const (
	// OutcomeAllowed means a policy was loaded and permits the path.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDenied means a Disallow prefix matched the path.
	OutcomeDenied Outcome = "denied"
	// OutcomeUnavailable means no policy could be loaded and the gate failed open.
	OutcomeUnavailable Outcome = "unavailable"
)

// Decision is the result of evaluating a path against an origin's policy.
type Decision struct {
	Allowed    bool
	CrawlDelay *float64
	Outcome    Outcome
}

// Config controls how robots.txt documents are retrieved.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	Transport http.RoundTripper
}

// Gate fetches robots.txt on every evaluation. It holds no per-origin state.
type Gate struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewGate builds a Gate. A nil logger disables logging.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Gate{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &retryTransport{base: base, backoff: defaultRetryBackoff},
		},
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

// Evaluate decides whether path may be fetched from origin. It never fails:
// an unreachable or unsuccessful robots.txt resolves to an allow-all decision.
func (g *Gate) Evaluate(ctx context.Context, origin, path string) Decision {
	policy, err := g.load(ctx, origin)
	if err != nil {
		g.logger.Debug("robots unavailable; allowing",
			zap.String("origin", origin),
			zap.Error(err),
		)
		metrics.ObserveRobotsEvaluation(string(OutcomeUnavailable))
		return Decision{Allowed: true, Outcome: OutcomeUnavailable}
	}

	decision := Decision{
		Allowed:    policy.Allowed(path),
		CrawlDelay: policy.CrawlDelay,
		Outcome:    OutcomeAllowed,
	}
	if !decision.Allowed {
		decision.Outcome = OutcomeDenied
	}
	g.logger.Debug("robots evaluated",
		zap.String("origin", origin),
		zap.String("path", path),
		zap.String("outcome", string(decision.Outcome)),
		zap.Int("disallow_rules", len(policy.DisallowedPrefixes)),
	)
	metrics.ObserveRobotsEvaluation(string(decision.Outcome))
	return decision
}

func (g *Gate) load(ctx context.Context, origin string) (Policy, error) {
	robotsURL := strings.TrimSuffix(origin, "/") + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return Policy{}, fmt.Errorf("new robots request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Policy{}, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Policy{}, fmt.Errorf("robots status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes))
	if err != nil {
		return Policy{}, fmt.Errorf("read robots body: %w", err)
	}
	return ParseString(string(body)), nil
}

var defaultRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// retryTransport retries robots.txt requests that hit transient TLS handshake
// timeouts. Other failures are returned immediately.
type retryTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	maxAttempts := len(t.backoff) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots roundtrip: %w", err)
		}
		if attempt == maxAttempts-1 {
			metrics.ObserveRobotsTLSFallback()
			return nil, fmt.Errorf("robots roundtrip exhausted retries: %w", err)
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("robots roundtrip exhausted retries")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
