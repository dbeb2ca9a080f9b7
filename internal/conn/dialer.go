package conn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"srrt/internal/domain"
)

// Conn is one open duplex connection carrying JSON text frames.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection
	// fails.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials WebSocket endpoints.
type WebSocketDialer struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

// NewWebSocketDialer returns a dialer with the given handshake timeout.
func NewWebSocketDialer(handshake time.Duration) *WebSocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshake
	return &WebSocketDialer{Dialer: &d, WriteTimeout: 10 * time.Second}
}

// Dial opens a WebSocket connection to u.
func (d *WebSocketDialer) Dial(ctx context.Context, u string) (Conn, error) {
	c, resp, err := d.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial: %s", domain.ErrTransport, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial: %v", domain.ErrTransport, err)
	}
	return &wsConn{c: c, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration

	// gorilla allows one concurrent writer.
	wmu sync.Mutex
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if w.writeTimeout > 0 {
		_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	w.wmu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.c.Close()
}

// BuildURL assembles the connection address. server may be an http(s) or
// ws(s) origin; http schemes are mapped to their WebSocket equivalents.
func BuildURL(server, base, path, topic string, graph domain.Graph, token string, id domain.ConnID) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("conn: server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("conn: server url %q: unsupported scheme", server)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + base + path

	q := url.Values{}
	q.Set("topic", topic)
	q.Set("graph", string(graph))
	q.Set("token", token)
	q.Set("conn_id", string(id))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
