// File: internal/infra/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"interview-copilot/internal/config"
	"interview-copilot/internal/infra/api/apiv1"
	"interview-copilot/internal/infra/metrics"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router serves. Limiter, Relay and Admin are
// optional.
type Deps struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	Limiter   Limiter
	DB        Pinger
	V1        *apiv1.Server
	Relay     http.Handler
	Admin     *Admin
}

func NewRouter(d Deps, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(middleware.RealIP)
	r.Use(RequestLog(logger))
	r.Use(Recover(logger))
	r.Use(CORS(d.Server.AllowedOrigins))

	r.Get("/api/health", health(d.DB))
	r.Handle("/metrics", metrics.Handler())

	limit := func(route string) apiv1.Wrap {
		return RateLimit(d.Limiter, route, d.RateLimit.Limit, d.RateLimit.Window, logger)
	}
	apiv1.RegisterAPIV1(r, d.V1, apiv1.Options{
		Submit:  []apiv1.Wrap{limit("submit")},
		Request: []apiv1.Wrap{Timeout(d.Server.RequestTimeout)},
	})

	if d.Relay != nil {
		r.Get("/ws/stt", d.Relay.ServeHTTP)
	}
	if d.Admin != nil {
		d.Admin.register(r)
	}
	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "database unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Server owns the listening http.Server.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadTimeout,
			// No WriteTimeout: SSE and websocket responses are long-lived.
		},
		log: &l,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
