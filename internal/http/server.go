// Package http serves the ledgers as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	applog "monity/internal/log"
	"monity/internal/services"
)

type Server struct {
	http.Server
	svc         *services.LedgerService
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	logger      *applog.Logger

	shutdownOnce sync.Once
}

// Options tunes a Server. The zero value is usable.
type Options struct {
	RateLimit int // requests per client per minute
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, opts Options, logger *applog.Logger) *Server {
	s := &Server{
		svc:         svc,
		rateLimiter: newRateLimiter(opts.RateLimit),
		metrics:     &securityMetrics{},
		logger:      applog.OrDiscard(logger).WithComponent(applog.ComponentHTTP),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(applog.Middleware(s.logger, requestIDFrom))
	r.Use(middleware.Recoverer)
	r.Use(s.withSecurityHeaders)
	r.Use(s.withRateLimit)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/history", s.handleHistory)
		r.Route("/expenses", func(r chi.Router) {
			mountLedger(r, s.svc.Expenses, expenseToJSON, expenseFromJSON)
		})
		r.Route("/incomes", func(r chi.Router) {
			mountLedger(r, s.svc.Incomes, incomeToJSON, incomeFromJSON)
		})
	})

	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type requestIDKey struct{}

// withRequestID reuses the caller's X-Request-ID or generates one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"rate_limit_hits":     s.metrics.rateLimitHits.Load(),
		"suspicious_requests": s.metrics.suspiciousRequests.Load(),
	})
}
