// Package sharedhost implements the cross-tab shared-connection coordinator
// of spec §4.2: it hosts the single upstream StreamClient, tracks
// per-tab subscription state, enforces idle shutdown, handles identity
// changes, and replays last-known state to late joiners.
//
// Grounded on mcp/session_store.go (ServerSessionStateStore
// shape, reused here as the optional Persister) and mcp/streamable.go's
// session registry + Last-Event-ID replay (StreamableHTTPHandler.sessions,
// streamableClientConn.lastEventID).
package sharedhost

import (
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/port"
	"golang.org/x/time/rate"
)

// TabRecord is the Host's bookkeeping for one attached tab (spec §3).
//
// Invariant: callbackIndex values ⊆ subscribedTypes; subscribedTypes
// contains exactly those types for which the tab has ≥1 callback. This is
// maintained by registerCallback/unregisterCallback exclusively — no other
// code path mutates either field.
type TabRecord struct {
	TabID           string
	Visible         bool
	LastSeen        time.Time
	SubscribedTypes map[string]struct{}
	CallbackIndex   map[string]string // callbackID -> type

	port    port.Port
	limiter *rate.Limiter // optional per-tab fan-out limiter, SPEC_FULL §5
}

func newTabRecord(id string, p port.Port, visible bool, now time.Time, limiter *rate.Limiter) *TabRecord {
	return &TabRecord{
		TabID:           id,
		Visible:         visible,
		LastSeen:        now,
		SubscribedTypes: make(map[string]struct{}),
		CallbackIndex:   make(map[string]string),
		port:            p,
		limiter:         limiter,
	}
}

func (t *TabRecord) registerCallback(msgType, callbackID string) {
	t.CallbackIndex[callbackID] = msgType
	t.SubscribedTypes[msgType] = struct{}{}
}

// unregisterCallback removes one callback, or every callback for msgType
// if callbackID is empty. subscribedTypes is recomputed to stay exactly
// the set of types with ≥1 remaining callback.
func (t *TabRecord) unregisterCallback(msgType, callbackID string) {
	if callbackID == "" {
		for id, typ := range t.CallbackIndex {
			if typ == msgType {
				delete(t.CallbackIndex, id)
			}
		}
	} else {
		delete(t.CallbackIndex, callbackID)
	}
	delete(t.SubscribedTypes, msgType)
	for _, typ := range t.CallbackIndex {
		if typ == msgType {
			t.SubscribedTypes[msgType] = struct{}{}
			break
		}
	}
}

// Persister optionally lets a Host recover lastMessageByType and recreate
// its upstream across a restart of the Host process itself (SPEC_FULL §5).
// A nil Persister yields exactly spec.md's in-memory-only behavior.
type Persister interface {
	Save(identity envelope.Identity, lastMessageByType map[string]envelope.MessageEnvelope) error
	Load() (envelope.Identity, map[string]envelope.MessageEnvelope, error)
	Clear() error
}
