// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/dartsatlas-scraper/internal/config"
	"github.com/JakeFAU/dartsatlas-scraper/internal/id/uuid"
	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

const (
	msgTimeout    = "Request timed out. Please try again."
	msgConnection = "Connection lost. Please try again."
	msgDNS        = "Unable to reach the target website. Please check your internet connection."

	// requestSlack is added to the scrape timeout for the handler deadline so
	// the scrape's own timeout response wins.
	requestSlack = 30 * time.Second
)

// Scraper runs a bounded scrape invocation.
type Scraper interface {
	ScrapeWithTimeout(ctx context.Context, opts scraper.Options, d time.Duration) (scraper.ScrapeResult, error)
}

// Server wires HTTP handlers to the scrape engine.
type Server struct {
	router  chi.Router
	scraper Scraper
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scr Scraper, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper: scr,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(uuid.New()))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.Scraper.ScrapeTimeout + requestSlack))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/scrape", s.describe)
		r.Post("/scrape", s.scrape)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.scraper == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	SearchParams   *scraper.SearchParams `json:"searchParams"`
	ScrapeAllPages bool                  `json:"scrapeAllPages"`
	MaxPages       *int                  `json:"maxPages,omitempty"`
	Page           *int                  `json:"page,omitempty"`
	IncludeEntries bool                  `json:"includeEntries"`
	SaveResults    *bool                 `json:"saveResults,omitempty"`
	Filename       string                `json:"filename"`
}

type scrapeResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    *scraper.ScrapeResult `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	opts := s.toOptions(req)
	logger := s.logger.With(zap.String("request_id", requestID(r.Context())))
	logger.Info("starting scrape via API",
		zap.Bool("all_pages", opts.ScrapeAllPages),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("page", opts.Page),
		zap.Bool("include_entries", opts.IncludeEntries),
	)

	result, err := s.scraper.ScrapeWithTimeout(r.Context(), opts, s.cfg.Scraper.ScrapeTimeout)
	if err != nil {
		status, msg := failureStatus(err)
		logger.Error("scrape request failed", zap.Int("status", status), zap.Error(err))
		s.writeJSON(w, status, scrapeResponse{Success: false, Error: msg, Message: "Internal server error"})
		return
	}
	if !result.Success {
		status, msg := failureStatus(result.Cause)
		if status == http.StatusInternalServerError && result.Error != "" {
			msg = result.Error
		}
		logger.Warn("scrape unsuccessful", zap.Int("status", status), zap.String("error", result.Error))
		s.writeJSON(w, status, scrapeResponse{Success: false, Error: msg, Message: "Scraping failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, scrapeResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully scraped %d tournaments", result.TotalCount),
		Data:    &result,
	})
}

func (s *Server) toOptions(req scrapeRequest) scraper.Options {
	return scraper.Options{
		SearchParams:   req.SearchParams,
		ScrapeAllPages: req.ScrapeAllPages,
		MaxPages:       positiveOrDefault(req.MaxPages, s.cfg.Scraper.MaxPagesDefault),
		Page:           positiveOrDefault(req.Page, 1),
		IncludeEntries: req.IncludeEntries,
		SaveResults:    boolOrDefault(req.SaveResults, true),
		Filename:       req.Filename,
	}
}

// failureStatus maps an error to the HTTP status and user-facing message.
func failureStatus(err error) (int, string) {
	switch scraper.Classify(err) {
	case scraper.KindTimeout:
		return http.StatusRequestTimeout, msgTimeout
	case scraper.KindConnection:
		return http.StatusServiceUnavailable, msgConnection
	case scraper.KindDNS:
		return http.StatusServiceUnavailable, msgDNS
	}
	if err == nil {
		return http.StatusInternalServerError, "scrape failed"
	}
	return http.StatusInternalServerError, err.Error()
}

func (s *Server) describe(w http.ResponseWriter, _ *http.Request) {
	maxPages := 5
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Darts Atlas Scraper API",
		"endpoints": map[string]string{
			"POST": "/api/scrape - Start scraping with optional search parameters",
			"GET":  "/api/scrape - Get API information",
		},
		"features": map[string]string{
			"dateSearch":   "Support for date-based search using 'date' parameter",
			"pagination":   "Support for multi-page scraping",
			"entries":      "Optional per-tournament entries count lookup",
			"searchParams": "Advanced search with name, location, radius, date, structure",
		},
		"example": map[string]any{
			"method": http.MethodPost,
			"body": scrapeRequest{
				SearchParams: &scraper.SearchParams{
					Name:      "Open",
					Location:  "London",
					Radius:    "50mi",
					Date:      "2025-08-08",
					Structure: "Knockout",
				},
				ScrapeAllPages: true,
				MaxPages:       &maxPages,
				Filename:       "custom-filename.json",
			},
		},
	})
}

func positiveOrDefault(ptr *int, def int) int {
	if ptr == nil || *ptr <= 0 {
		return def
	}
	return *ptr
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

type requestIDKey struct{}

type requestIDGenerator interface {
	NewRequestID() string
}

func requestIDMiddleware(ids requestIDGenerator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = ids.NewRequestID()
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, msgTimeout)
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := encodeJSON(w, status, payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, scrapeResponse{Success: false, Error: msg, Message: "Invalid request"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = encodeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func encodeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
