// File: internal/infra/relay/manager.go
package relay

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"interview-copilot/internal/infra/metrics"
)

// Manager upgrades client connections and runs one Session per socket.
// Sessions are independent: a failing upstream only affects its own client.
type Manager struct {
	dialer   Dialer
	cfg      Config
	upgrader websocket.Upgrader
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewManager(dialer Dialer, cfg Config, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "RelayManager").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	cfg = cfg.withDefaults()
	return &Manager{
		dialer: dialer,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		log:    &l,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		m.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(m.cfg.MaxMessageBytes)

	id := ulid.Make().String()
	sess := NewSession(id, conn, m.dialer, m.cfg, m.log)

	m.wg.Add(1)
	m.active.Add(1)
	metrics.RelaySessionOpened()
	m.log.Info().Str("relay_session", id).Str("remote", r.RemoteAddr).Msg("relay session opened")

	// The session outlives the handler's request context.
	go func() {
		defer m.wg.Done()
		defer m.active.Add(-1)
		defer metrics.RelaySessionClosed()
		err := sess.Run(m.ctx)
		m.log.Info().Err(err).Str("relay_session", id).Msg("relay session closed")
	}()
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// Active reports the number of running sessions.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Shutdown stops every session and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
