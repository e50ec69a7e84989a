package sharedhost

import (
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
	"github.com/streamhub/streamhub/port"
)

// handleEvent is the run() goroutine's sole dispatch point; every field it
// touches is therefore free of data races without a mutex (spec §5).
func (h *Host) handleEvent(ev any) {
	switch v := ev.(type) {
	case tabMsgEvent:
		h.handleTabMessage(v.p, v.msg)
	case portClosedEvent:
		h.dropTab(v.tabID, "port closed")
	case upstreamOpenEvent:
		h.onUpstreamOpen()
	case upstreamCloseEvent:
		h.onUpstreamClose(v.info)
	case upstreamErrorEvent:
		h.onUpstreamError(v.err)
	case upstreamFrameEvent:
		h.onUpstreamFrame(v.env)
	case idleTimeoutEvent:
		h.idleTimer = nil
		if !h.wantUpstream() && h.upstream != nil {
			h.upstream.Disconnect()
		}
	case suspendExpiredEvent:
		h.suspendedUntil = time.Time{}
		h.reconcileUpstream()
	case snapshotRequest:
		v.reply <- h.snapshotLocked()
	}
}

func (h *Host) snapshotLocked() Snapshot {
	visible := 0
	for _, t := range h.tabs {
		if t.Visible {
			visible++
		}
	}
	return Snapshot{
		HasIdentity:    h.hasIdentity,
		Identity:       h.identity,
		TabCount:       len(h.tabs),
		VisibleTabs:    visible,
		UpstreamOpen:   h.upstream != nil && h.upstream.IsOpen(),
		Suspended:      time.Now().Before(h.suspendedUntil),
		FastCloseCount: h.fastCloseCount,
	}
}

// handleTabMessage routes one inbound tab frame to its op handler.
func (h *Host) handleTabMessage(p port.Port, msg envelope.TabMessage) {
	if msg.Kind != envelope.TabInit {
		if _, ok := h.tabs[msg.TabID]; !ok {
			h.replyTabNotFound(p, msg.TabID)
			return
		}
	}
	switch msg.Kind {
	case envelope.TabInit:
		h.opTabInit(p, msg)
	case envelope.TabDisconnect:
		h.dropTab(msg.TabID, "tab disconnect")
	case envelope.TabSend:
		h.opTabSend(msg)
	case envelope.TabVisibility:
		h.opTabVisibility(msg)
	case envelope.TabRegisterCallback:
		h.opTabRegisterCallback(msg)
	case envelope.TabUnregisterCallback:
		h.opTabUnregisterCallback(msg)
	case envelope.TabPing:
		h.opTabPing(p, msg)
	case envelope.TabForceShutdown:
		h.opTabForceShutdown(msg)
	case envelope.TabForceReset:
		h.opTabForceReset(msg)
	case envelope.TabNetworkOnline:
		h.opTabNetworkOnline()
	default:
		h.sink.Warn("unknown tab message kind", "kind", msg.Kind, "tab", msg.TabID)
	}
}

// replyTabNotFound answers a frame from a tab the Host never completed
// TAB_INIT for (e.g. it arrived after a stale sweep already reaped the
// record) directly over the sending port, bypassing the tab registry.
func (h *Host) replyTabNotFound(p port.Port, tabID string) {
	frame, err := codec.Encode(envelope.HostMessage{Kind: envelope.WorkerTabNotFound, Timestamp: nowMillis()})
	if err != nil {
		return
	}
	_ = p.Send(h.rootCtx, frame)
	h.sink.Warn("message from unknown tab", "tab", tabID)
}

func (h *Host) sendToTab(t *TabRecord, hm envelope.HostMessage) {
	if t.limiter != nil && !t.limiter.Allow() {
		h.sink.Warn("dropping message, tab fan-out limit exceeded", "tab", t.TabID, "kind", hm.Kind)
		return
	}
	frame, err := codec.Encode(hm)
	if err != nil {
		h.sink.Error("encode host message", "error", err)
		return
	}
	if err := t.port.Send(h.rootCtx, frame); err != nil {
		h.sink.Warn("send to tab failed", "tab", t.TabID, "error", err)
	}
}

func (h *Host) broadcast(hm envelope.HostMessage) {
	for _, t := range h.tabs {
		h.sendToTab(t, hm)
	}
}

func (h *Host) opTabSend(msg envelope.TabMessage) {
	t, ok := h.tabs[msg.TabID]
	if !ok {
		return
	}
	t.LastSeen = time.Now()
	if h.upstream == nil {
		h.sendToTab(t, envelope.HostMessage{Kind: envelope.WorkerError, Timestamp: nowMillis(), Payload: envelope.WorkerErrorPayload{Message: "no active stream"}})
		return
	}
	var payload envelope.TabSendPayload
	if err := decodePayload(msg, &payload); err != nil {
		h.sink.Warn("malformed TAB_SEND payload", "tab", msg.TabID, "error", err)
		return
	}
	if err := h.upstream.Send(payload.Data); err != nil {
		h.sendToTab(t, envelope.HostMessage{Kind: envelope.WorkerError, Timestamp: nowMillis(), Payload: envelope.WorkerErrorPayload{Message: "send failed", Detail: err.Error()}})
	}
}

func (h *Host) opTabVisibility(msg envelope.TabMessage) {
	t, ok := h.tabs[msg.TabID]
	if !ok {
		return
	}
	var payload envelope.TabVisibilityPayload
	if err := decodePayload(msg, &payload); err != nil {
		h.sink.Warn("malformed TAB_VISIBILITY payload", "tab", msg.TabID, "error", err)
		return
	}
	t.Visible = payload.IsVisible
	t.LastSeen = time.Now()
	h.reconcileIdleTimer()
	h.reconcileUpstream()
}

func (h *Host) opTabRegisterCallback(msg envelope.TabMessage) {
	t, ok := h.tabs[msg.TabID]
	if !ok {
		return
	}
	var payload envelope.CallbackPayload
	if err := decodePayload(msg, &payload); err != nil {
		h.sink.Warn("malformed TAB_REGISTER_CALLBACK payload", "tab", msg.TabID, "error", err)
		return
	}
	t.LastSeen = time.Now()
	t.registerCallback(payload.Type, payload.CallbackID)
	if env, ok := h.lastMessageByType[payload.Type]; ok {
		h.sendToTab(t, envelope.HostMessage{Kind: envelope.WorkerMessage, Timestamp: nowMillis(), Payload: envelope.WorkerMessagePayload{Envelope: env}})
	}
}

func (h *Host) opTabUnregisterCallback(msg envelope.TabMessage) {
	t, ok := h.tabs[msg.TabID]
	if !ok {
		return
	}
	var payload envelope.CallbackPayload
	if err := decodePayload(msg, &payload); err != nil {
		h.sink.Warn("malformed TAB_UNREGISTER_CALLBACK payload", "tab", msg.TabID, "error", err)
		return
	}
	t.LastSeen = time.Now()
	t.unregisterCallback(payload.Type, payload.CallbackID)
}

func (h *Host) opTabPing(p port.Port, msg envelope.TabMessage) {
	t, ok := h.tabs[msg.TabID]
	if !ok {
		return
	}
	t.LastSeen = time.Now()
	h.sendToTab(t, envelope.HostMessage{Kind: envelope.WorkerPong, Timestamp: nowMillis()})
}

// opTabForceShutdown does everything opTabForceReset does, then shuts the
// Host down: teardown closes every tab port and the claimed socket, if any.
func (h *Host) opTabForceShutdown(msg envelope.TabMessage) {
	h.opTabForceReset(msg)
	go h.Close()
}

// opTabForceReset implements the TAB_FORCE_RESET escape hatch: unlike
// opTabForceShutdown, tabs stay attached and are expected to reinitialize
// (send a fresh TAB_INIT) once they observe WORKER_DISCONNECTED.
func (h *Host) opTabForceReset(msg envelope.TabMessage) {
	var payload envelope.ForcePayload
	_ = decodePayload(msg, &payload)
	h.sink.Warn("force reset requested", "tab", msg.TabID, "reason", payload.Reason)

	h.broadcast(envelope.HostMessage{Kind: envelope.WorkerDisconnected, Timestamp: nowMillis()})
	if h.upstream != nil {
		h.upstream.Shutdown()
		h.upstream = nil
	}
	h.hasIdentity = false
	h.identity = envelope.Identity{}
	h.lastMessageByType = make(map[string]envelope.MessageEnvelope)
	if h.cfg.Persister != nil {
		_ = h.cfg.Persister.Clear()
	}
	h.fastCloseCount = 0
	h.suspendedUntil = time.Time{}
}

func (h *Host) opTabNetworkOnline() {
	if h.upstream != nil {
		h.upstream.Connect("")
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func decodePayload(msg envelope.TabMessage, out any) error {
	raw, err := codec.Encode(msg.Payload)
	if err != nil {
		return err
	}
	return codec.Decode(raw, out)
}
