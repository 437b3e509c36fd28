// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /scrape?url=<target> runs one robots-gated fetch and extraction.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
