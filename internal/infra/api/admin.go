package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"interview-copilot/internal/infra/logging"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type SessionCounter interface {
	Active() int
}

// Admin exposes operator endpoints behind a static bearer key.
type Admin struct {
	key     string
	sweeper Sweeper
	relay   SessionCounter
	log     *zerolog.Logger
}

// NewAdmin returns nil when key is empty, which leaves the routes unmounted.
func NewAdmin(key string, sweeper Sweeper, relay SessionCounter, logger *zerolog.Logger) *Admin {
	if key == "" {
		return nil
	}
	l := logger.With().Str("component", "Admin").Logger()
	return &Admin{key: key, sweeper: sweeper, relay: relay, log: &l}
}

func (a *Admin) register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(a.auth)
		r.Post("/sweep", a.sweep)
		r.Get("/relay", a.relayStats)
	})
}

func (a *Admin) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.key)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep runs one recovery pass on demand.
func (a *Admin) sweep(w http.ResponseWriter, r *http.Request) {
	if a.sweeper == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "sweeper disabled"})
		return
	}
	n, err := a.sweeper.Sweep(r.Context())
	if err != nil {
		l := logging.With(r.Context(), a.log)
		l.Error().Err(err).Msg("manual sweep failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recovered": n})
}

func (a *Admin) relayStats(w http.ResponseWriter, r *http.Request) {
	active := 0
	if a.relay != nil {
		active = a.relay.Active()
	}
	writeJSON(w, http.StatusOK, map[string]int{"active_sessions": active})
}
