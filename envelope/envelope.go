package envelope

import (
	"github.com/streamhub/streamhub/internal/codec"
)

// MessageEnvelope is the typed message record carried on the wire and
// between the SharedHost and its tabs (spec §3). Type is required: Decode
// reports a frame whose type is missing, empty or non-string with ok=false,
// and callers such as streamclient's dispatch drop it.
type MessageEnvelope struct {
	Type      string         `json:"type"`
	Data      any            `json:"data,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// Decode parses a raw frame into a MessageEnvelope. It returns ok=false
// (never an error) when the frame parses as JSON but lacks a usable
// string `type`, matching spec §4.1's "envelopes without type are
// dropped" rule — only a JSON syntax error is reported as an error.
func Decode(frame []byte) (env MessageEnvelope, ok bool, err error) {
	var raw struct {
		Type      any            `json:"type"`
		Data      any            `json:"data,omitempty"`
		Meta      map[string]any `json:"meta,omitempty"`
		Timestamp int64          `json:"timestamp,omitempty"`
	}
	if derr := codec.Decode(frame, &raw); derr != nil {
		return MessageEnvelope{}, false, derr
	}
	typ, isString := raw.Type.(string)
	if !isString || typ == "" {
		return MessageEnvelope{}, false, nil
	}
	return MessageEnvelope{Type: typ, Data: raw.Data, Meta: raw.Meta, Timestamp: raw.Timestamp}, true, nil
}

// Encode serializes env for wire transmission.
func Encode(env MessageEnvelope) ([]byte, error) {
	return codec.Encode(env)
}

// Heartbeat builds the default outbound heartbeat envelope (spec §4.1):
// {"type":"PING","timestamp":<epoch ms>}.
func Heartbeat(nowUnixMilli int64) MessageEnvelope {
	return MessageEnvelope{Type: "PING", Timestamp: nowUnixMilli}
}

// Callback is the function shape a Subscription invokes: (data, envelope).
type Callback func(data any, env MessageEnvelope)

// Subscription is a (messageType, callback) pair with an opaque,
// subscriber-scoped ID (spec §3). Subscribers may register multiple
// callbacks for the same type; insertion order determines dispatch order
// (spec §9 Open Question: "multiple allowed, registration order").
type Subscription struct {
	ID       string
	Type     string
	Callback Callback
}

// Entry is the constructor shape callers pass to On/RegisterCallback,
// mirroring spec §4.1's `on(entry)` overload.
type Entry struct {
	Type     string
	Callback Callback
}

// Valid reports whether e can be registered (spec §7 InvalidSubscription).
func (e Entry) Valid() bool {
	return e.Type != "" && e.Callback != nil
}
