// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagescrape/internal/config"
	"github.com/JakeFAU/pagescrape/internal/extract"
	"github.com/JakeFAU/pagescrape/internal/logging"
	"github.com/JakeFAU/pagescrape/internal/metrics"
	"github.com/JakeFAU/pagescrape/internal/scrape"
)

const (
	requestIDHeader = "X-Request-ID"
	blockedMessage  = "Blocked by robots.txt"
)

// Scraper runs one scrape for a raw target URL.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (scrape.Result, error)
}

// IDGenerator produces request identifiers.
type IDGenerator interface {
	MustID() string
}

// Server wires HTTP handlers to the scrape service.
type Server struct {
	router  chi.Router
	scraper Scraper
	idGen   IDGenerator
	cfg     config.Config
	logger  *zap.Logger
	ready   atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scraper Scraper, idGen IDGenerator, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper: scraper,
		idGen:   idGen,
		cfg:     cfg,
		logger:  logger,
	}
	s.ready.Store(true)

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/scrape", s.scrape)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady toggles the readiness probe, e.g. while draining on shutdown.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeResponse struct {
	Success bool       `json:"success"`
	URL     string     `json:"url"`
	Robots  robotsInfo `json:"robots"`
	Data    scrapeData `json:"data"`
}

type robotsInfo struct {
	CrawlDelay *float64 `json:"crawlDelay"`
}

type scrapeData struct {
	Title    *string        `json:"title"`
	Headings []string       `json:"headings"`
	Links    []extract.Link `json:"links"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type upstreamResponse struct {
	Success    bool   `json:"success"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
}

// scrape handles GET /scrape?url=<target>. An absent or empty url falls back
// to the configured default target.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := r.URL.Query().Get("url")
	if target == "" {
		target = s.cfg.Scrape.DefaultURL
	}

	result, err := s.scraper.Scrape(ctx, target)
	if err != nil {
		s.writeScrapeError(ctx, w, err)
		return
	}

	headings := result.Headings
	if headings == nil {
		headings = []string{}
	}
	links := result.Links
	if links == nil {
		links = []extract.Link{}
	}
	writeJSON(ctx, w, http.StatusOK, scrapeResponse{
		Success: true,
		URL:     result.URL,
		Robots:  robotsInfo{CrawlDelay: result.CrawlDelay},
		Data: scrapeData{
			Title:    result.Title,
			Headings: headings,
			Links:    links,
		},
	})
}

func (s *Server) writeScrapeError(ctx context.Context, w http.ResponseWriter, err error) {
	var upstream *scrape.UpstreamError
	switch {
	case errors.Is(err, scrape.ErrInvalidInputURL):
		writeError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scrape.ErrPolicyDenied):
		writeError(ctx, w, http.StatusForbidden, blockedMessage)
	case errors.As(err, &upstream):
		writeJSON(ctx, w, http.StatusBadGateway, upstreamResponse{
			Success:    false,
			Status:     upstream.StatusCode,
			StatusText: upstream.Status,
		})
	default:
		logging.FromContext(ctx).Error("scrape failed", zap.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := s.idGen.MustID()
		w.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With(zap.String("request_id", RequestID(r.Context())))
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))
		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).Error("panic recovered", zap.Any("error", rec))
				writeError(r.Context(), w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the request context. Handlers observe the deadline
// through their collaborators and report it like any other failure.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

// RequestID returns the identifier assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("write JSON failed", zap.Error(err))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, errorResponse{Success: false, Error: msg})
}
