// Package metrics exposes Prometheus collectors for the scrape service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	scrapesTotal               *prometheus.CounterVec
	robotsEvaluationsTotal     *prometheus.CounterVec
	robotsTLSFallbackTotal     prometheus.Counter
	linksExtracted             prometheus.Histogram
	headlessPromotionsTotal    *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		)

		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagescrape_scrapes_total",
				Help: "Total number of scrape requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		robotsEvaluationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagescrape_robots_evaluations_total",
				Help: "Total number of robots.txt evaluations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		robotsTLSFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pagescrape_robots_tls_fallback_total",
				Help: "Total robots.txt fetches abandoned after repeated TLS handshake timeouts.",
			},
		)

		linksExtracted = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagescrape_links_extracted",
				Help:    "Number of unique links returned per successful scrape.",
				Buckets: []float64{0, 1, 2, 5, 10},
			},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagescrape_headless_promotions_total",
				Help: "Total number of probe fetches promoted to headless rendering, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveScrape records the outcome of one scrape request. Targets are caller
// input, so they are never used as label values.
func ObserveScrape(outcome string) {
	Init()
	scrapesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRobotsEvaluation records the outcome of one robots.txt evaluation.
func ObserveRobotsEvaluation(outcome string) {
	Init()
	robotsEvaluationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRobotsTLSFallback increments the robots TLS fallback counter.
func ObserveRobotsTLSFallback() {
	Init()
	robotsTLSFallbackTotal.Inc()
}

// ObserveLinksExtracted records how many links a scrape returned.
func ObserveLinksExtracted(count int) {
	Init()
	linksExtracted.Observe(float64(count))
}

// ObserveHeadlessPromotion records a headless promotion and whether it succeeded.
func ObserveHeadlessPromotion(result string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(result).Inc()
}
