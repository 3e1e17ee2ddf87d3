// ABOUTME: Transport abstraction over the live socket plus the websocket implementation.
// ABOUTME: The Manager only sees Dial/Read/Write/Close; tests swap in fakes.

package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrAuthRejected indicates the backend refused the connection token.
// Credential failures are not transient and are never retried.
var ErrAuthRejected = errors.New("connection token rejected")

// Conn is a single established duplex connection.
type Conn interface {
	// ReadFrame blocks until the next inbound frame arrives or the
	// connection fails.
	ReadFrame() (Frame, error)
	// WriteFrame sends a frame. Not safe for concurrent use; the Manager
	// serializes writers.
	WriteFrame(Frame) error
	Close() error
}

// Transport establishes connections to the live messaging backend.
type Transport interface {
	Dial(ctx context.Context, url, authToken string) (Conn, error)
}

// WebsocketTransport dials the backend over a websocket with a bearer
// token handshake.
type WebsocketTransport struct {
	// HandshakeTimeout bounds the dial. Zero means the dialer default.
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection authenticated with authToken.
// A 401/403 handshake response maps to ErrAuthRejected.
func (t *WebsocketTransport) Dial(ctx context.Context, url, authToken string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.HandshakeTimeout,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+authToken)

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla websocket connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame() (Frame, error) {
	var f Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) WriteFrame(f Frame) error {
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
