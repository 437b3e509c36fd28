// Package main hosts the pagescrape service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /scrape?url=<target> plus health, readiness and metrics endpoints.
//     Every response carries an X-Request-ID header; failures are JSON with success=false.
//   - Policy gate: internal/robots fetches {origin}/robots.txt on every request and fails open when the document is
//     unreachable or unsuccessful. Only the universal (User-agent: *) group's Disallow prefixes and Crawl-delay apply.
//   - Fetch pipeline: the Colly-based fetcher performs the page fetch with the configured user agent. When headless
//     rendering is enabled, the heuristic detector may promote a thin or script-heavy probe to a Chromedp fetch.
//   - Extraction: internal/extract pulls the title, up to five h1-h3 headings and up to ten unique absolute links with
//     bounded regex scans. It never fails; malformed markup yields empty fields.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler. The service is stateless across requests.
//
// Operational notes:
//   - Crawl-delay is reported to the caller and never enforced here.
//   - The robots.txt client retries transient TLS handshake failures before failing open.
//   - Cloud Run: the HTTP server listens on the configured port (overridable via PORT) and drains for up to ten
//     seconds on SIGTERM while /readyz reports draining.
//
// Quick checklist:
//   - Configure env vars: PAGESCRAPE_SERVER_PORT or PORT, PAGESCRAPE_SCRAPE_DEFAULT_URL, PAGESCRAPE_SCRAPE_USER_AGENT,
//     PAGESCRAPE_HTTP_TIMEOUT_SECONDS, PAGESCRAPE_ROBOTS_MAX_BYTES, PAGESCRAPE_HEADLESS_ENABLED.
//   - Run locally: go run ./cmd/pagescrape -config config.yaml (or rely solely on env overrides).
package main
