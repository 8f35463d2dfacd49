// Package server exposes the decision engine over HTTP for review tooling.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adaptivedocs/corrigo/internal/config"
	"github.com/adaptivedocs/corrigo/internal/engine"
	"github.com/adaptivedocs/corrigo/internal/monitoring"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// Server wires the engine, store and metrics collector behind a chi router.
type Server struct {
	cfg       config.ServerConfig
	engine    *engine.Engine
	store     store.Store
	collector *monitoring.Collector
	limiter   *rate.Limiter
}

// New creates a Server. The rate limiter applies to every route; burst is
// one second of traffic.
func New(cfg config.ServerConfig, eng *engine.Engine, st store.Store, collector *monitoring.Collector) *Server {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	return &Server{
		cfg:       cfg,
		engine:    eng,
		store:     st,
		collector: collector,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// Router builds the HTTP handler. Exposed separately so tests can drive
// it with httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/decisions", s.handleDecide)
		r.Post("/decisions/{id}/feedback", s.handleFeedback)
		r.Get("/runs", s.handleListRuns)
		r.Get("/rules", s.handleListRules)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
