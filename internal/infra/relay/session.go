package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-copilot/internal/config"
	"interview-copilot/internal/infra/metrics"
)

// Config tunes one relay session.
type Config struct {
	Model            string
	Language         string
	SampleRate       int
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
	// AllowedOrigins limits browser clients; empty allows any origin.
	AllowedOrigins []string
}

func ConfigFrom(c config.RelayConfig, origins []string) Config {
	cfg := Config{
		Model:            c.LiveModel,
		Language:         c.Language,
		SampleRate:       c.SampleRate,
		ReconnectDelay:   c.ReconnectDelay,
		HandshakeTimeout: c.HandshakeTimeout,
		MaxMessageBytes:  c.MaxMessageBytes,
		AllowedOrigins:   origins,
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	return c
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateAwaitingHandshake
	stateReady
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAwaitingHandshake:
		return "awaiting_handshake"
	case stateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Loop events. Anything tied to one upstream connection carries the
// generation it was started under; a newer generation makes it stale.
type (
	clientFrame struct {
		kind int
		data []byte
	}
	clientClosed struct{ err error }
	dialResult   struct {
		gen  uint64
		conn Conn
		err  error
	}
	upstreamFrame struct {
		gen  uint64
		data []byte
	}
	upstreamClosed struct {
		gen uint64
		err error
	}
	handshakeExpired struct{ gen uint64 }
	reconnectDue     struct{ gen uint64 }
)

// Session bridges one client socket to at most one upstream socket. All
// state lives on the Run goroutine, which is also the only writer on both
// sockets.
type Session struct {
	id     string
	client Conn
	dialer Dialer
	cfg    Config
	log    *zerolog.Logger

	events chan any
	done   chan struct{}

	state      state
	gen        uint64
	upstream   Conn
	timer      *time.Timer
	reconnects int
}

func NewSession(id string, client Conn, dialer Dialer, cfg Config, logger *zerolog.Logger) *Session {
	l := logger.With().Str("component", "RelaySession").Str("relay_session", id).Logger()
	return &Session{
		id:     id,
		client: client,
		dialer: dialer,
		cfg:    cfg.withDefaults(),
		log:    &l,
		events: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Run serves the session until the client goes away or ctx is cancelled.
// The upstream socket and any pending timer never outlive it.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.teardown()

	go s.readClient()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			if s.handle(ctx, ev) {
				return nil
			}
		}
	}
}

func (s *Session) post(ev any) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) readClient() {
	for {
		kind, data, err := s.client.ReadMessage()
		if err != nil {
			s.post(clientClosed{err: err})
			return
		}
		if !s.post(clientFrame{kind: kind, data: data}) {
			return
		}
	}
}

func (s *Session) readUpstream(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.post(upstreamClosed{gen: gen, err: err})
			return
		}
		if !s.post(upstreamFrame{gen: gen, data: data}) {
			return
		}
	}
}

// handle applies one event and reports whether the session is over.
func (s *Session) handle(ctx context.Context, ev any) bool {
	switch ev := ev.(type) {
	case clientFrame:
		s.onClientFrame(ctx, ev)
	case clientClosed:
		s.log.Debug().Err(ev.err).Msg("client disconnected")
		return true
	case dialResult:
		s.onDial(ev)
	case upstreamFrame:
		if ev.gen == s.gen {
			s.onUpstreamFrame(ev.data)
		}
	case upstreamClosed:
		if ev.gen == s.gen && s.upstream != nil {
			s.onUpstreamClosed(ev.err)
		}
	case handshakeExpired:
		if ev.gen == s.gen && s.state == stateAwaitingHandshake {
			metrics.IncRelayUpstream("handshake_timeout")
			s.log.Warn().Dur("timeout", s.cfg.HandshakeTimeout).Msg("upstream handshake timed out")
			s.fail("transcription handshake timed out")
		}
	case reconnectDue:
		if ev.gen == s.gen && s.state == stateConnecting && s.upstream == nil {
			metrics.IncRelayUpstream("reconnect")
			s.connect(ctx)
		}
	}
	return false
}

func (s *Session) onClientFrame(ctx context.Context, f clientFrame) {
	if f.kind == websocket.BinaryMessage {
		if s.state != stateReady {
			metrics.IncRelayFrame("dropped")
			return
		}
		payload, err := encodeAudio(f.data, s.cfg.SampleRate)
		if err == nil {
			err = s.upstream.WriteMessage(websocket.TextMessage, payload)
		}
		if err != nil {
			// The upstream reader reports the close.
			s.log.Warn().Err(err).Msg("forward audio frame")
			return
		}
		metrics.IncRelayFrame("forwarded")
		return
	}

	var msg clientMessage
	if err := json.Unmarshal(f.data, &msg); err != nil {
		s.send(errorEvent("invalid control message"))
		return
	}
	switch msg.Type {
	case msgStart:
		if s.state == stateIdle {
			s.reconnects = 0
			s.connect(ctx)
		}
	case msgStop:
		s.stop()
	default:
		s.send(errorEvent(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (s *Session) connect(ctx context.Context) {
	s.gen++
	gen := s.gen
	s.state = stateConnecting
	go func() {
		conn, err := s.dialer.Dial(ctx)
		if !s.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (s *Session) onDial(r dialResult) {
	if r.gen != s.gen || s.state != stateConnecting {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		return
	}
	if r.err != nil {
		metrics.IncRelayUpstream("dial_error")
		s.log.Warn().Err(r.err).Int("reconnects", s.reconnects).Msg("upstream dial failed")
		s.fail("transcription service unavailable")
		return
	}

	s.upstream = r.conn
	metrics.IncRelayUpstream("connect")
	setup, err := encodeSetup(s.cfg.Model, s.cfg.Language)
	if err == nil {
		err = s.upstream.WriteMessage(websocket.TextMessage, setup)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("send setup")
		s.fail("transcription handshake failed")
		return
	}

	s.state = stateAwaitingHandshake
	gen := s.gen
	s.setTimer(s.cfg.HandshakeTimeout, handshakeExpired{gen: gen})
	go s.readUpstream(gen, r.conn)
}

func (s *Session) onUpstreamFrame(data []byte) {
	events, ready, err := translate(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("skip upstream message")
		return
	}
	if ready && s.state == stateAwaitingHandshake {
		s.stopTimer()
		s.state = stateReady
		s.reconnects = 0
		metrics.IncRelayUpstream("ready")
		s.log.Info().Msg("upstream ready")
		s.send(readyEvent())
	}
	for _, ev := range events {
		s.send(ev)
	}
}

func (s *Session) onUpstreamClosed(err error) {
	code := closeCode(err)
	if isNormalClose(code) {
		metrics.IncRelayUpstream("close_normal")
		s.log.Info().Msg("upstream closed normally")
		s.dropUpstream(websocket.CloseNormalClosure)
		s.state = stateIdle
		return
	}
	metrics.IncRelayUpstream("close_abnormal")
	s.log.Warn().Err(err).Int("code", code).Msg("upstream closed abnormally")
	s.fail(fmt.Sprintf("transcription connection lost (code %d)", code))
}

// fail reports a transient error to the client and schedules a reconnect.
func (s *Session) fail(msg string) {
	s.send(errorEvent(msg))
	s.dropUpstream(websocket.CloseGoingAway)
	s.state = stateConnecting
	s.reconnects++
	s.setTimer(s.cfg.ReconnectDelay, reconnectDue{gen: s.gen})
}

func (s *Session) stop() {
	if s.state == stateIdle {
		return
	}
	s.log.Info().Str("state", s.state.String()).Msg("stop requested")
	s.dropUpstream(websocket.CloseNormalClosure)
	s.state = stateIdle
}

// dropUpstream closes the current upstream and invalidates everything
// started under its generation.
func (s *Session) dropUpstream(code int) {
	s.stopTimer()
	if s.upstream != nil {
		closeWith(s.upstream, code, "")
		s.upstream = nil
	}
	s.gen++
}

func (s *Session) teardown() {
	s.dropUpstream(websocket.CloseNormalClosure)
	s.state = stateIdle
	closeWith(s.client, websocket.CloseNormalClosure, "")
}

func (s *Session) setTimer(d time.Duration, ev any) {
	s.stopTimer()
	s.timer = time.AfterFunc(d, func() { s.post(ev) })
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) send(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.client.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debug().Err(err).Str("event", ev.Type).Msg("write to client")
	}
}
