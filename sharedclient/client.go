package sharedclient

import (
	"context"
	"crypto/rand"
	"net"
	"sync"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/port"
	"github.com/streamhub/streamhub/sharedhost"
)

// Hooks are the tab-local lifecycle callbacks (spec §4.3). All run inside
// the client's own failure boundary.
type Hooks struct {
	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
	OnAuthConflict func(currentUserID, newUserID, explanation string)
}

// Client is a tab's handle onto a shared upstream (spec §4.3).
type Client struct {
	cfg   Config
	hooks Hooks
	tabID string
	p     port.Port

	mu       sync.Mutex
	subs     map[string][]envelope.Subscription
	identity envelope.Identity
	visible  bool
	open     bool

	rootCtx context.Context
	cancel  context.CancelFunc
	stopped sync.Once
}

// Dial locates (or becomes) the Host for key and returns a Client attached
// to it. If no Host currently owns key, this process claims it and keeps
// its own tab attached in-process via a Pair port, with Serve fielding
// further tabs over the Unix socket (spec §6's shared-execution-context
// translation, documented in full in the package-level wiring notes).
func Dial(ctx context.Context, key string, identity envelope.Identity, visible bool, cfg Config, hooks Hooks) (*Client, error) {
	cfg = cfg.withDefaults()

	p, err := attach(key, cfg)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:      cfg,
		hooks:    hooks,
		tabID:    rand.Text(),
		p:        p,
		subs:     make(map[string][]envelope.Subscription),
		identity: identity,
		visible:  visible,
		rootCtx:  cctx,
		cancel:   cancel,
	}

	go c.readLoop()
	if err := c.sendInit(identity); err != nil {
		cancel()
		return nil, err
	}
	go c.heartbeatLoop()
	return c, nil
}

// attach finds an existing Host's socket, or claims the key and attaches
// in-process if none exists yet.
func attach(key string, cfg Config) (port.Port, error) {
	path := sharedhost.SocketPath(key)
	if conn, err := net.DialTimeout("unix", path, cfg.DialTimeout); err == nil {
		return port.NetPort(conn), nil
	}

	host, claimed, err := sharedhost.Claim(sharedhost.Config{Sink: cfg.Sink.With("component", "host")}, key)
	if err != nil {
		return nil, err
	}
	if claimed {
		a, b := port.Pair(64)
		host.Serve(b)
		return a, nil
	}

	// Another process won the race between our failed dial and the claim
	// attempt; it now owns the socket.
	conn, err := net.DialTimeout("unix", path, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	return port.NetPort(conn), nil
}

func (c *Client) sendInit(identity envelope.Identity) error {
	return c.sendTab(envelope.TabInit, envelope.TabInitPayload{
		BaseURL:           identity.BaseURL,
		UserID:            identity.UserID,
		Credential:        identity.Credential,
		IsVisible:         c.visible,
		IdleTimeoutMillis: c.cfg.IdleTimeoutMillis,
	})
}

func (c *Client) sendTab(kind string, payload any) error {
	tm := envelope.TabMessage{Kind: kind, TabID: c.tabID, Timestamp: time.Now().UnixMilli(), Payload: payload}
	frame, err := codec.Encode(tm)
	if err != nil {
		return &errs.ParseError{Err: err}
	}
	ctx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
	defer cancel()
	if err := c.p.Send(ctx, frame); err != nil {
		return &errs.TransportError{Op: "send", Err: err}
	}
	return nil
}

// IsConnected reports whether the Host last told this tab the upstream
// was open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SetVisible notifies the Host of a page-visibility transition (spec §4.3
// visibility listener, surfaced to the caller since Go has no DOM). If the
// tab is becoming visible while locally recorded as disconnected, it first
// resends TAB_INIT plus every known subscription, covering the case where
// the Host reaped this tab (e.g. the stale sweep) while it was hidden.
func (c *Client) SetVisible(visible bool) error {
	c.mu.Lock()
	c.visible = visible
	reconstruct := visible && !c.open
	c.mu.Unlock()
	if reconstruct {
		c.resubscribe()
	}
	return c.sendTab(envelope.TabVisibility, envelope.TabVisibilityPayload{IsVisible: visible})
}

// NotifyNetworkOnline tells the Host connectivity has been restored (spec
// §4.3 network-online listener, surfaced since Go has no navigator.onLine).
func (c *Client) NotifyNetworkOnline() error {
	return c.sendTab(envelope.TabNetworkOnline, nil)
}

// Send forwards payload to the Host for delivery upstream (spec §4.3).
func (c *Client) Send(payload any) error {
	return c.sendTab(envelope.TabSend, envelope.TabSendPayload{Data: payload})
}

// On registers a callback for messageType, replaying the Host's last
// cached message of that type if one exists (spec §4.3 late-joiner
// replay).
func (c *Client) On(messageType string, cb envelope.Callback) (string, error) {
	return c.OnEntry(envelope.Entry{Type: messageType, Callback: cb})
}

func (c *Client) OnEntry(entry envelope.Entry) (string, error) {
	if !entry.Valid() {
		return "", errs.ErrInvalidSubscription
	}
	id := rand.Text()
	c.mu.Lock()
	c.subs[entry.Type] = append(c.subs[entry.Type], envelope.Subscription{ID: id, Type: entry.Type, Callback: entry.Callback})
	c.mu.Unlock()
	if err := c.sendTab(envelope.TabRegisterCallback, envelope.CallbackPayload{Type: entry.Type, CallbackID: id}); err != nil {
		return "", err
	}
	return id, nil
}

// Off removes a subscription, or every subscription for messageType if
// subscriptionID is empty.
func (c *Client) Off(messageType, subscriptionID string) error {
	c.mu.Lock()
	list := c.subs[messageType]
	if subscriptionID == "" {
		delete(c.subs, messageType)
	} else {
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
	c.mu.Unlock()
	return c.sendTab(envelope.TabUnregisterCallback, envelope.CallbackPayload{Type: messageType, CallbackID: subscriptionID})
}

// Stop tells the Host this tab is going away cleanly, then tears down the
// local port (spec §4.3 teardown listener, driven by the caller instead of
// an unload event).
func (c *Client) Stop() {
	c.stopped.Do(func() {
		_ = c.sendTab(envelope.TabDisconnect, nil)
		c.cancel()
		c.p.Close()
	})
}

// ForceShutdown asks the Host to tear down its upstream entirely,
// regardless of other attached tabs (spec §4.3 escape hatch).
func (c *Client) ForceShutdown() error {
	return c.sendTab(envelope.TabForceShutdown, nil)
}

func (c *Client) sink() *obs.Sink { return c.cfg.Sink }
