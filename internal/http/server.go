package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	applog "custfin/internal/log"
	"custfin/internal/middleware/ratelimit"
	"custfin/internal/middleware/security"
	"custfin/internal/middleware/trace"
	"custfin/internal/services"
)

// Config tunes the server. Zero values select defaults.
type Config struct {
	RateLimitPerMinute int
	Logger             *applog.Logger
	// Ready reports whether the backing services are reachable; nil means
	// always ready.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	service  *services.FinanceService
	overview *services.Overview
	ready    func(context.Context) error

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.FinanceService, ov *services.Overview, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	limits := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		service:  svc,
		overview: ov,
		ready:    cfg.Ready,
		limiter:  ratelimit.NewLimiter(limits),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		detector: detector,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/finance/overview", s.handleOverview)
	mux.HandleFunc("GET /api/finance/customers/{id}", s.handleCustomerDetail)
	mux.HandleFunc("POST /api/finance/customers/{id}/transactions", s.handleRecordTransaction)
	mux.HandleFunc("POST /api/finance/customers/{id}/complete", s.handleMarkCompleted)
	mux.HandleFunc("POST /api/finance/customers/{id}/reminders", s.handleCreateReminder)
	mux.HandleFunc("DELETE /api/finance/transactions/{id}", s.handleDeleteTransaction)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError("rate limit exceeded, try again later").Write(w)
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, ratelimit.Mutating, onLimit)(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(handler)
	handler = applog.ComponentMiddleware(applog.ComponentHTTP)(handler)
	handler = applog.RequestIDMiddleware(trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the limiter, drops the loaded overview and then shuts the
// server down. Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.overview != nil {
			s.overview.Close()
		}
		shutdownErr = s.Server.Shutdown(ctx)
		slog.InfoContext(ctx, "HTTP server stopped",
			"requests", s.tracer.GetMetrics().TotalRequests,
			"rate_limited", s.limiter.GetMetrics().TotalHits,
			"suspicious", s.detector.GetMetrics().SuspiciousRequests)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
