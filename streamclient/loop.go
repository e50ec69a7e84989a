package streamclient

import (
	"context"
	"errors"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/netwatch"
	"github.com/streamhub/streamhub/transport"
)

func (c *Client) dial(ctx context.Context, gen int) {
	conn, err := c.cfg.Dial(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		c.sink().Error("connect failed", "url", c.cfg.URL, "error", err)
		c.invokeError(&errs.TransportError{Op: "connect", Err: err})
		c.scheduleReconnect(gen)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = Open
	c.attempts = 0
	c.mu.Unlock()

	c.invokeOpen()
	go c.heartbeatLoop(ctx, gen)
	c.readLoop(ctx, gen, conn)
}

func (c *Client) readLoop(ctx context.Context, gen int, conn transport.Conn) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			c.handleClosed(gen, err)
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	env, ok, err := envelope.Decode(frame)
	if err != nil {
		c.sink().Warn("dropping malformed frame", "error", err)
		return
	}
	if !ok {
		return
	}
	c.mu.Lock()
	subs := append([]envelope.Subscription(nil), c.subs[env.Type]...)
	if env.Type != wildcardType {
		subs = append(subs, c.subs[wildcardType]...)
	}
	c.mu.Unlock()
	for _, s := range subs {
		c.invokeCallback(s, env)
	}
}

// wildcardType, when passed to On/OnEntry, subscribes to every message
// type instead of one (SPEC_FULL §4 supplement used by sharedhost to
// observe the full upstream stream for caching and tab fan-out).
const wildcardType = "*"

// invokeCallback runs cb inside a failure boundary: a panic in one
// callback is logged and does not affect others or the dispatch loop
// (spec §4.1, §7 propagation policy).
func (c *Client) invokeCallback(s envelope.Subscription, env envelope.MessageEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			c.sink().Error("callback panicked", "type", s.Type, "recover", r)
		}
	}()
	s.Callback(env.Data, env)
}

func (c *Client) handleClosed(gen int, err error) {
	var ci transport.CloseInfo
	var ce *transport.CloseError
	if errors.As(err, &ce) {
		ci = ce.Info
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	manual := c.manualClose
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.invokeClose(ci)
	if !manual {
		c.scheduleReconnect(gen)
	}
}

// heartbeatLoop emits cfg.HeartbeatMessage every HeartbeatInterval while
// OPEN. A tick firing while the stream is CLOSING is a no-op (spec §8
// boundary behavior) because Send checks the state itself.
func (c *Client) heartbeatLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := gen != c.generation || c.state != Open
			c.mu.Unlock()
			if stale {
				return
			}
			_ = c.Send(c.cfg.HeartbeatMessage())
		}
	}
}

// scheduleReconnect implements spec §4.1's bounded linear-backoff
// reconnect policy. Suppressed if manualClose is set or AutoReconnect is
// false.
func (c *Client) scheduleReconnect(gen int) {
	c.mu.Lock()
	if c.manualClose || !*c.cfg.AutoReconnect || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.attempts++
	n := c.attempts
	if n > c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.sink().Warn("reconnect attempts exhausted", "attempts", n)
		c.invokeError(errs.ErrReconnectExhausted)
		return
	}
	delay := backoffDelay(n, c.cfg.ReconnectDelay, c.cfg.ReconnectDelayMax)
	c.mu.Unlock()

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.manualClose || gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		ctx, cancel := context.WithCancel(c.rootCtx)
		c.cancelConnect = cancel
		c.mu.Unlock()
		c.dial(ctx, gen)
	})
}

func (c *Client) watchNetwork() {
	for ev := range c.netEvents {
		switch ev {
		case netwatch.EventOffline:
			c.mu.Lock()
			if c.cancelConnect != nil {
				c.cancelConnect()
			}
			c.mu.Unlock()
		case netwatch.EventOnline:
			c.mu.Lock()
			c.attempts = 0
			notOpen := c.state != Open
			url := c.cfg.URL
			c.mu.Unlock()
			if notOpen {
				c.Connect(url)
			}
		}
	}
}

func (c *Client) invokeOpen() {
	if c.hooks.OnOpen == nil {
		return
	}
	defer c.recoverHook("OnOpen")
	c.hooks.OnOpen()
}

func (c *Client) invokeClose(info transport.CloseInfo) {
	if c.hooks.OnClose == nil {
		return
	}
	defer c.recoverHook("OnClose")
	c.hooks.OnClose(info)
}

func (c *Client) invokeError(err error) {
	if c.hooks.OnError == nil {
		return
	}
	defer c.recoverHook("OnError")
	c.hooks.OnError(err)
}

func (c *Client) recoverHook(name string) {
	if r := recover(); r != nil {
		c.sink().Error("hook panicked", "hook", name, "recover", r)
	}
}
