// Package transport implements the upstream full-duplex text stream
// StreamClient rides on, the same role mcp/websocket.go fills for the
// MCP SDK's client/server connections.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single full-duplex text-stream connection. Frames are UTF-8
// JSON text (spec §6).
type Conn interface {
	// Read blocks until the next frame, ctx cancellation, or a transport
	// error. A clean close is reported via CloseInfo on the returned error.
	Read(ctx context.Context) (frame []byte, err error)
	// Write sends a single text frame.
	Write(ctx context.Context, frame []byte) error
	// Close closes the connection.
	Close() error
}

// CloseInfo describes how a Conn ended, enough for sharedhost to run the
// fast-close circuit breaker (spec §4.2, §7 FastCloseBurst).
type CloseInfo struct {
	Code  int
	Clean bool
}

// CloseError wraps a CloseInfo so callers can recover it via errors.As.
type CloseError struct {
	Info CloseInfo
	Err  error
}

func (e *CloseError) Error() string { return fmt.Sprintf("transport: closed: %v", e.Err) }
func (e *CloseError) Unwrap() error { return e.Err }

// Dial opens a WebSocket client connection to url, mirroring
// mcp/websocket.go's websocketConn but without the "mcp" subprotocol,
// which this stream protocol has no equivalent of.
func Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.DefaultDialer
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &wsConn{conn: conn, openedAt: time.Now()}, nil
}

type wsConn struct {
	conn     *websocket.Conn
	openedAt time.Time
	mu       sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		code := websocket.CloseNoStatusReceived
		if ce, ok := err.(*websocket.CloseError); ok {
			code = ce.Code
		}
		clean := code == websocket.CloseNormalClosure
		return nil, &CloseError{Info: CloseInfo{Code: code, Clean: clean}, Err: err}
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("transport: unexpected message type %d", messageType)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
