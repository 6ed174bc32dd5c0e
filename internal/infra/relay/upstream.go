package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn a session uses, for either side.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Dialer opens one upstream socket.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// GeminiLiveDialer dials the Live API, passing the key as a query parameter.
type GeminiLiveDialer struct {
	URL    string
	APIKey string
	WS     *websocket.Dialer
}

func NewGeminiLiveDialer(rawURL, apiKey string) *GeminiLiveDialer {
	return &GeminiLiveDialer{
		URL:    rawURL,
		APIKey: apiKey,
		WS:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (d *GeminiLiveDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}
	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	conn, resp, err := ws.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live api: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live api: %w", err)
	}
	return conn, nil
}

// closeCode extracts the peer's close code. Anything that is not a close
// frame counts as abnormal.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func isNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure
}

func closeWith(c Conn, code int, reason string) {
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = c.Close()
}
