package sharedclient

import (
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
)

func (c *Client) readLoop() {
	for {
		frame, err := c.p.Recv(c.rootCtx)
		if err != nil {
			c.mu.Lock()
			c.open = false
			c.mu.Unlock()
			c.invokeDisconnected()
			return
		}
		var hm envelope.HostMessage
		if derr := codec.Decode(frame, &hm); derr != nil {
			c.sink().Warn("dropping malformed host frame", "error", derr)
			continue
		}
		c.dispatch(hm)
	}
}

func (c *Client) dispatch(hm envelope.HostMessage) {
	switch hm.Kind {
	case envelope.WorkerConnected:
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		c.invokeConnected()
	case envelope.WorkerDisconnected:
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		c.invokeDisconnected()
	case envelope.WorkerError:
		var payload envelope.WorkerErrorPayload
		_ = decodeHostPayload(hm, &payload)
		c.invokeError(payload)
	case envelope.WorkerAuthConflict:
		var payload envelope.WorkerAuthConflictPayload
		_ = decodeHostPayload(hm, &payload)
		c.invokeAuthConflict(payload)
	case envelope.WorkerMessage:
		var payload envelope.WorkerMessagePayload
		if err := decodeHostPayload(hm, &payload); err != nil {
			c.sink().Warn("malformed WORKER_MESSAGE payload", "error", err)
			return
		}
		c.deliver(payload.Envelope)
	case envelope.WorkerPong, envelope.WorkerReady:
		// liveness acknowledgements; nothing to surface to the caller.
	case envelope.WorkerTabNotFound:
		c.sink().Warn("host forgot this tab, re-registering subscriptions")
		c.resubscribe()
	default:
		c.sink().Warn("unknown host message kind", "kind", hm.Kind)
	}
}

// resubscribe replays every local subscription to the Host after a
// WORKER_TAB_NOT_FOUND, which signals the Host's record of this tab was
// reaped (e.g. by the stale sweep) while the tab itself is still alive.
func (c *Client) resubscribe() {
	c.mu.Lock()
	types := make([]string, 0, len(c.subs))
	for t := range c.subs {
		types = append(types, t)
	}
	visible := c.visible
	c.mu.Unlock()

	_ = c.sendInitQuiet(visible)
	for _, t := range types {
		c.mu.Lock()
		ids := make([]string, 0, len(c.subs[t]))
		for _, s := range c.subs[t] {
			ids = append(ids, s.ID)
		}
		c.mu.Unlock()
		for _, id := range ids {
			_ = c.sendTab(envelope.TabRegisterCallback, envelope.CallbackPayload{Type: t, CallbackID: id})
		}
	}
}

// sendInitQuiet resends the full TAB_INIT this tab originally dialed with,
// so the Host can reconstruct its record after reaping this tab (e.g. the
// stale sweep) without the tab itself ever having disconnected.
func (c *Client) sendInitQuiet(visible bool) error {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()
	return c.sendTab(envelope.TabInit, envelope.TabInitPayload{
		BaseURL:           identity.BaseURL,
		UserID:            identity.UserID,
		Credential:        identity.Credential,
		IsVisible:         visible,
		IdleTimeoutMillis: c.cfg.IdleTimeoutMillis,
	})
}

func (c *Client) deliver(env envelope.MessageEnvelope) {
	c.mu.Lock()
	subs := append([]envelope.Subscription(nil), c.subs[env.Type]...)
	c.mu.Unlock()
	for _, s := range subs {
		c.invokeCallback(s, env)
	}
}

func (c *Client) invokeCallback(s envelope.Subscription, env envelope.MessageEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			c.sink().Error("callback panicked", "type", s.Type, "recover", r)
		}
	}()
	s.Callback(env.Data, env)
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.rootCtx.Done():
			return
		case <-ticker.C:
			_ = c.sendTab(envelope.TabPing, nil)
		}
	}
}

func (c *Client) invokeConnected() {
	if c.hooks.OnConnected == nil {
		return
	}
	defer c.recoverHook("OnConnected")
	c.hooks.OnConnected()
}

func (c *Client) invokeDisconnected() {
	if c.hooks.OnDisconnected == nil {
		return
	}
	defer c.recoverHook("OnDisconnected")
	c.hooks.OnDisconnected()
}

func (c *Client) invokeError(payload envelope.WorkerErrorPayload) {
	if c.hooks.OnError == nil {
		return
	}
	defer c.recoverHook("OnError")
	c.hooks.OnError(&hostError{payload: payload})
}

func (c *Client) invokeAuthConflict(payload envelope.WorkerAuthConflictPayload) {
	if c.hooks.OnAuthConflict == nil {
		return
	}
	defer c.recoverHook("OnAuthConflict")
	c.hooks.OnAuthConflict(payload.CurrentUserID, payload.NewUserID, payload.Explanation)
}

func (c *Client) recoverHook(name string) {
	if r := recover(); r != nil {
		c.sink().Error("hook panicked", "hook", name, "recover", r)
	}
}

func decodeHostPayload(hm envelope.HostMessage, out any) error {
	raw, err := codec.Encode(hm.Payload)
	if err != nil {
		return err
	}
	return codec.Decode(raw, out)
}

// hostError wraps a WORKER_ERROR payload as an error value for OnError.
type hostError struct {
	payload envelope.WorkerErrorPayload
}

func (e *hostError) Error() string {
	if e.payload.Detail != "" {
		return e.payload.Message + ": " + e.payload.Detail
	}
	return e.payload.Message
}
