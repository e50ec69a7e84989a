package sharedhost

import (
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/port"
	"github.com/streamhub/streamhub/streamclient"
	"github.com/streamhub/streamhub/transport"
	"golang.org/x/time/rate"
)

type idleTimeoutEvent struct{}
type suspendExpiredEvent struct{}

func (h *Host) opTabInit(p port.Port, msg envelope.TabMessage) {
	var payload envelope.TabInitPayload
	if err := decodePayload(msg, &payload); err != nil {
		h.sink.Warn("malformed TAB_INIT payload", "tab", msg.TabID, "error", err)
		return
	}
	newIdentity := envelope.Identity{BaseURL: payload.BaseURL, UserID: payload.UserID, Credential: payload.Credential}
	h.applyIdentity(newIdentity)
	if payload.IdleTimeoutMillis > 0 {
		h.cfg.IdleTimeout = time.Duration(payload.IdleTimeoutMillis) * time.Millisecond
	}

	var limiter *rate.Limiter
	if h.cfg.TabFanoutLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.TabFanoutLimit), int(h.cfg.TabFanoutLimit)+1)
	}
	h.tabs[msg.TabID] = newTabRecord(msg.TabID, p, payload.IsVisible, time.Now(), limiter)

	h.reconcileIdleTimer()
	h.reconcileUpstream()

	kind := envelope.WorkerDisconnected
	if h.upstream != nil && h.upstream.IsOpen() {
		kind = envelope.WorkerConnected
	}
	h.sendToTab(h.tabs[msg.TabID], envelope.HostMessage{Kind: kind, Timestamp: nowMillis()})
}

// applyIdentity handles spec's identity-change rule: a change of user
// identity while an upstream is active tears the upstream and cache down
// and broadcasts WORKER_AUTH_CONFLICT to every already-attached tab; a
// credential-only refresh for the same user is adopted silently.
func (h *Host) applyIdentity(next envelope.Identity) {
	if !h.hasIdentity {
		h.identity = next
		h.hasIdentity = true
		return
	}
	if h.identity.UserID == next.UserID {
		changed := !h.identity.Equal(next)
		h.identity = next
		if changed && h.upstream != nil {
			// Same user, but BaseURL/Credential changed underneath it —
			// drop the live connection so reconcileUpstream reconnects
			// with the new identity instead of leaving a stale credential
			// on the wire until an unrelated disconnect happens to
			// trigger a reconnect.
			h.upstream.Disconnect()
		}
		return
	}
	h.broadcast(envelope.HostMessage{
		Kind:      envelope.WorkerAuthConflict,
		Timestamp: nowMillis(),
		Payload: envelope.WorkerAuthConflictPayload{
			CurrentUserID: h.identity.UserID,
			NewUserID:     next.UserID,
			Explanation:   "a different identity attached to the shared stream; resetting",
		},
	})
	if h.upstream != nil {
		h.upstream.Shutdown()
		h.upstream = nil
	}
	h.lastMessageByType = make(map[string]envelope.MessageEnvelope)
	if h.cfg.Persister != nil {
		_ = h.cfg.Persister.Clear()
	}
	h.fastCloseCount = 0
	h.suspendedUntil = time.Time{}
	h.identity = next
}

func (h *Host) dropTab(tabID, reason string) {
	t, ok := h.tabs[tabID]
	if !ok {
		return
	}
	h.sink.Debug("dropping tab", "tab", tabID, "reason", reason)
	t.port.Close()
	delete(h.tabs, tabID)
	h.reconcileIdleTimer()
	h.reconcileUpstream()
}

func (h *Host) staleSweep() {
	cutoff := time.Now().Add(-h.cfg.StaleAfter)
	var stale []string
	for id, t := range h.tabs {
		if t.LastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	// A reaped tab's port is left open: if the tab is still alive, its next
	// frame is answered with WORKER_TAB_NOT_FOUND and it can reinitialize.
	for _, id := range stale {
		h.sink.Debug("dropping tab", "tab", id, "reason", "stale")
		delete(h.tabs, id)
	}
	if len(stale) > 0 {
		h.reconcileIdleTimer()
		h.reconcileUpstream()
	}
}

// reconcileIdleTimer arms a timer to shut the upstream down once every tab
// has been hidden (or gone) for IdleTimeout, and disarms it the moment any
// tab is visible again (spec §4.2 idle-shutdown behavior).
func (h *Host) reconcileIdleTimer() {
	anyVisible := false
	for _, t := range h.tabs {
		if t.Visible {
			anyVisible = true
			break
		}
	}
	if anyVisible || len(h.tabs) == 0 {
		if h.idleTimer != nil {
			h.idleTimer.Stop()
			h.idleTimer = nil
		}
		return
	}
	if h.idleTimer != nil {
		return
	}
	h.idleTimer = time.AfterFunc(h.cfg.IdleTimeout, func() {
		h.postEvent(idleTimeoutEvent{})
	})
}

// reconcileUpstream applies spec §4.2's connection policy: connect while
// at least one tab is visible and not suspended, otherwise disconnect and
// let the StreamClient's own reconnect machinery stay dormant.
func (h *Host) reconcileUpstream() {
	if !h.hasIdentity {
		return
	}
	want := h.wantUpstream()
	if want {
		h.ensureUpstream()
		if h.upstream != nil && !h.upstream.IsOpen() {
			url, err := h.identity.StreamURL()
			if err != nil {
				h.sink.Error("build stream url", "error", err)
				return
			}
			h.upstream.Connect(url)
		}
	} else if h.upstream != nil {
		h.upstream.Disconnect()
	}
}

func (h *Host) wantUpstream() bool {
	if time.Now().Before(h.suspendedUntil) {
		return false
	}
	for _, t := range h.tabs {
		if t.Visible {
			return true
		}
	}
	return false
}

// ensureUpstream lazily builds the owned Client, wiring its hooks to
// forward every lifecycle event back onto the single-goroutine event loop
// as a plain event value — never touched directly from the hook's own
// goroutine.
func (h *Host) ensureUpstream() {
	if h.upstream != nil {
		return
	}
	autoReconnect := true
	c := streamclient.New(streamclient.Config{
		AutoReconnect:         &autoReconnect,
		EnableNetworkListener: false,
		Sink:                  h.sink.With("component", "upstream"),
	}, streamclient.Hooks{
		OnOpen:  func() { h.postEvent(upstreamOpenEvent{}) },
		OnClose: func(info transport.CloseInfo) { h.postEvent(upstreamCloseEvent{info: info}) },
		OnError: func(err error) { h.postEvent(upstreamErrorEvent{err: err}) },
	})
	if _, err := c.On(streamclient.AllTypes, func(data any, env envelope.MessageEnvelope) {
		h.postEvent(upstreamFrameEvent{env: env})
	}); err != nil {
		h.sink.Error("subscribe wildcard", "error", err)
	}
	h.upstream = c
}

func (h *Host) onUpstreamOpen() {
	h.openedAt = time.Now()
	h.broadcast(envelope.HostMessage{Kind: envelope.WorkerConnected, Timestamp: nowMillis()})
}

// onUpstreamClose implements the fast-close circuit breaker: a run of
// consecutive clean closes that each happened within FastCloseWindow of
// opening suspends reconnection for SuspendDuration (SPEC_FULL §5,
// generalizing spec §4.2's retry storm protection).
func (h *Host) onUpstreamClose(info transport.CloseInfo) {
	h.broadcast(envelope.HostMessage{Kind: envelope.WorkerDisconnected, Timestamp: nowMillis()})

	if info.Clean && time.Since(h.openedAt) < h.cfg.FastCloseWindow {
		h.fastCloseCount++
	} else {
		h.fastCloseCount = 0
	}
	if h.fastCloseCount >= h.cfg.FastCloseThreshold {
		h.fastCloseCount = 0
		h.suspendedUntil = time.Now().Add(h.cfg.SuspendDuration)
		h.broadcast(envelope.HostMessage{
			Kind:      envelope.WorkerError,
			Timestamp: nowMillis(),
			Payload:   envelope.WorkerErrorPayload{Message: "reconnection suspended after repeated fast closes"},
		})
		h.upstream.Disconnect()
		time.AfterFunc(h.cfg.SuspendDuration, func() { h.postEvent(suspendExpiredEvent{}) })
	}
	// Otherwise streamclient's own AutoReconnect (backoff per spec §4.1)
	// retries without Host intervention; the Host only steps in to arm/
	// disarm reconnection at policy transitions (visibility, tab count,
	// suspension), handled by reconcileUpstream elsewhere.
}

func (h *Host) onUpstreamError(err error) {
	h.broadcast(envelope.HostMessage{Kind: envelope.WorkerError, Timestamp: nowMillis(), Payload: envelope.WorkerErrorPayload{Message: err.Error()}})
}

func (h *Host) onUpstreamFrame(env envelope.MessageEnvelope) {
	h.lastMessageByType[env.Type] = env
	if h.cfg.Persister != nil {
		_ = h.cfg.Persister.Save(h.identity, h.lastMessageByType)
	}
	for _, t := range h.tabs {
		if _, ok := t.SubscribedTypes[env.Type]; ok {
			h.sendToTab(t, envelope.HostMessage{Kind: envelope.WorkerMessage, Timestamp: nowMillis(), Payload: envelope.WorkerMessagePayload{Envelope: env}})
		}
	}
}
