// Package streamclient implements the reusable low-level stream client of
// spec §4.1: heartbeat, bounded reconnection, network-awareness, and typed
// callback dispatch over a single full-duplex text stream. Grounded on
// mcp/streamable.go's client-side reconnect/backoff and
// lastEventID-driven replay-on-reconnect, and mcp/websocket.go's
// connection wrapper itself, realized in ../transport.
package streamclient

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/netwatch"
	"github.com/streamhub/streamhub/transport"
)

// Hooks are optional lifecycle callbacks. All are invoked inside the
// client's own failure boundary and must not block.
type Hooks struct {
	OnOpen  func()
	OnClose func(info transport.CloseInfo)
	OnError func(err error)
}

// Client is a StreamClient (spec §4.1).
type Client struct {
	cfg   Config
	hooks Hooks

	mu            sync.Mutex
	state         State
	conn          transport.Conn
	manualClose   bool
	attempts      int
	subs          map[string][]envelope.Subscription
	generation    int
	cancelConnect context.CancelFunc

	netEvents  <-chan netwatch.Event
	stopNet    chan struct{}
	closeOnce  sync.Once
	rootCancel context.CancelFunc
	rootCtx    context.Context
}

// New constructs a Client. Call Connect to open the stream.
func New(cfg Config, hooks Hooks) *Client {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		hooks:      hooks,
		subs:       make(map[string][]envelope.Subscription),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	if cfg.EnableNetworkListener {
		c.netEvents = cfg.Watcher.Events()
		go c.watchNetwork()
	}
	return c
}

// IsOpen reports whether the stream is currently OPEN.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Open
}

// ReadyState returns the current State.
func (c *Client) ReadyState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the stream. Idempotent if already OPEN or CONNECTING
// (spec §4.1).
func (c *Client) Connect(url string) {
	c.mu.Lock()
	if url != "" {
		c.cfg.URL = url
	}
	if c.state == Open || c.state == Connecting {
		c.mu.Unlock()
		return
	}
	c.manualClose = false
	c.state = Connecting
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(c.rootCtx)
	c.cancelConnect = cancel
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

// Disconnect marks manualClose, closes the stream, cancels heartbeat and
// any pending reconnect; clears attempts (spec §4.1). Subscriptions are
// not cleared.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.attempts = 0
	conn := c.conn
	c.conn = nil
	if c.state != Disconnected {
		c.state = Closing
	}
	if c.cancelConnect != nil {
		c.cancelConnect()
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
}

// Shutdown permanently stops the client, including its network watcher.
func (c *Client) Shutdown() {
	c.Disconnect()
	c.closeOnce.Do(func() {
		c.rootCancel()
		if c.cfg.Watcher != nil {
			c.cfg.Watcher.Stop()
		}
	})
}

// Send accepts a string or a map/struct; non-string payloads are
// JSON-serialized (spec §4.1). Fails with ErrSendUnavailable if not OPEN.
func (c *Client) Send(payload any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == Open
	c.mu.Unlock()
	if !open || conn == nil {
		c.cfg.Sink.Warn("send while not open", "url", c.cfg.URL)
		return errs.ErrSendUnavailable
	}

	var frame []byte
	switch v := payload.(type) {
	case string:
		frame = []byte(v)
	case []byte:
		frame = v
	default:
		var err error
		frame, err = codec.Encode(v)
		if err != nil {
			return &errs.ParseError{Err: err}
		}
	}
	ctx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
	defer cancel()
	if err := conn.Write(ctx, frame); err != nil {
		return &errs.TransportError{Op: "send", Err: err}
	}
	return nil
}

// AllTypes, passed to On/OnEntry, subscribes to every message type the
// stream delivers instead of one — used by sharedhost to observe the full
// upstream for caching and per-tab fan-out (SPEC_FULL §4, §5).
const AllTypes = wildcardType

// On registers a subscription for messageType (spec §4.1).
func (c *Client) On(messageType string, cb envelope.Callback) (string, error) {
	return c.OnEntry(envelope.Entry{Type: messageType, Callback: cb})
}

// OnEntry registers a subscription from an Entry, matching the `on(entry)`
// overload of spec §4.1.
func (c *Client) OnEntry(entry envelope.Entry) (string, error) {
	if !entry.Valid() {
		c.cfg.Sink.Warn("invalid subscription", "type", entry.Type)
		return "", errs.ErrInvalidSubscription
	}
	id := randID()
	c.mu.Lock()
	c.subs[entry.Type] = append(c.subs[entry.Type], envelope.Subscription{ID: id, Type: entry.Type, Callback: entry.Callback})
	c.mu.Unlock()
	return id, nil
}

// Off removes the specific (type, cb) pair, or all pairs for type if cb is
// the zero ID.
func (c *Client) Off(messageType, subscriptionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subscriptionID == "" {
		delete(c.subs, messageType)
		return
	}
	list := c.subs[messageType]
	out := list[:0]
	for _, s := range list {
		if s.ID != subscriptionID {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		delete(c.subs, messageType)
	} else {
		c.subs[messageType] = out
	}
}

// ClearSubscriptions removes all subscriptions.
func (c *Client) ClearSubscriptions() {
	c.mu.Lock()
	c.subs = make(map[string][]envelope.Subscription)
	c.mu.Unlock()
}

// randID returns an opaque subscriber-scoped identifier, the same way the
// teacher's util.randText does for session IDs (mcp/util.go).
func randID() string {
	return rand.Text()
}

func (c *Client) sink() *obs.Sink { return c.cfg.Sink }
