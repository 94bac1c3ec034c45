// Package server exposes the relayd HTTP API: the relay endpoint, per-user
// history reads and deletes, aggregate statistics, and operational routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/serdar/relayd/internal/config"
	"github.com/serdar/relayd/internal/history"
	"github.com/serdar/relayd/internal/identity"
	"github.com/serdar/relayd/internal/logger"
	"github.com/serdar/relayd/internal/metrics"
	"github.com/serdar/relayd/internal/relay"
	"github.com/serdar/relayd/internal/stats"
)

const shutdownTimeout = 5 * time.Second

// Server wires the core services to HTTP routes.
type Server struct {
	cfg        *config.Config
	resolver   identity.Resolver
	relay      *relay.Service
	store      *history.Store
	stats      *stats.Service
	httpServer *http.Server
}

// New creates a server ready to Run.
func New(cfg *config.Config, resolver identity.Resolver, relaySvc *relay.Service, store *history.Store, statsSvc *stats.Service) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		relay:    relaySvc,
		store:    store,
		stats:    statsSvc,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/request", s.handleRelay)
	mux.HandleFunc("GET /api/history", s.requireIdentity(s.handleHistoryPage))
	mux.HandleFunc("GET /api/history/{id}", s.requireIdentity(s.handleHistoryGet))
	mux.HandleFunc("DELETE /api/history/{id}", s.requireIdentity(s.handleHistoryDelete))
	mux.HandleFunc("DELETE /api/history", s.requireIdentity(s.handleHistoryClear))
	mux.HandleFunc("GET /api/stats", s.requireIdentity(s.handleStats))

	return s.observe(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Infof(ctx, "Server listening on %s", s.cfg.ListenAddress)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// resolveIdentity extracts and resolves the bearer token, nil for anonymous.
func (s *Server) resolveIdentity(r *http.Request) *identity.Identity {
	token, ok := identity.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	return s.resolver.Resolve(r.Context(), token)
}

type identityHandler func(w http.ResponseWriter, r *http.Request, ident *identity.Identity)

// requireIdentity rejects anonymous callers with 401.
func (s *Server) requireIdentity(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident := s.resolveIdentity(r)
		if ident == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next(w, r, ident)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe logs each served request and feeds the API metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		metrics.ObserveHTTPRequest(r.Method, recorder.status)
		logger.Debugf(r.Context(), "%s %s -> %d (%s)",
			r.Method, r.URL.Path, recorder.status, time.Since(start).Round(time.Millisecond))
	})
}
