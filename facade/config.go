// Package facade implements the mode-selection entry point of spec §4.4:
// it owns configuration and current identity, picks among shared,
// visibility, and direct connection strategies, degrades gracefully when a
// mode isn't supported, and exposes one surface independent of which
// strategy is in effect.
//
// Grounded on mcp/session.go's client-construction conventions (functional
// defaults, option merging) and cmd/examples' singleton-vs-instance
// pattern, adapted here into a constructable *Session with a package-level
// Default() for callers that want a single shared instance.
package facade

import (
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/obs"
)

// Mode is a connection-mode selection (spec §4.4).
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeShared     Mode = "shared"
	ModeVisibility Mode = "visibility"
	ModeDirect     Mode = "direct"
)

// Config is the Facade's mergeable configuration (spec §4.4 setConfig).
type Config struct {
	URL                         string
	HeartbeatInterval           time.Duration
	MaxReconnectAttempts        int
	ReconnectDelay              time.Duration
	ReconnectDelayMax           time.Duration
	AutoReconnect               bool
	HeartbeatMessage            func() envelope.MessageEnvelope
	EnableVisibilityManagement  bool
	ConnectionMode              Mode
	SharedIdleTimeout           time.Duration
	ForceNewOnStart             bool
	EnableNetworkListener       bool
	Callbacks                   []envelope.Entry
	Sink                        *obs.Sink

	// HostKey names the shared execution context tabs must agree on to
	// land on the same SharedHost (spec §6's stable script URL, translated
	// per SPEC_FULL §0). Defaults to "streamhub:" + URL when empty.
	HostKey string
}

// Merge overlays non-zero fields of patch onto c and returns the result
// (setConfig's "merges configuration" semantics — spec.md's partial-update
// contract, applied field by field since Go has no natural partial type).
func (c Config) Merge(patch Config) Config {
	if patch.URL != "" {
		c.URL = patch.URL
	}
	if patch.HeartbeatInterval > 0 {
		c.HeartbeatInterval = patch.HeartbeatInterval
	}
	if patch.MaxReconnectAttempts > 0 {
		c.MaxReconnectAttempts = patch.MaxReconnectAttempts
	}
	if patch.ReconnectDelay > 0 {
		c.ReconnectDelay = patch.ReconnectDelay
	}
	if patch.ReconnectDelayMax > 0 {
		c.ReconnectDelayMax = patch.ReconnectDelayMax
	}
	if patch.HeartbeatMessage != nil {
		c.HeartbeatMessage = patch.HeartbeatMessage
	}
	if patch.ConnectionMode != "" {
		c.ConnectionMode = patch.ConnectionMode
	}
	if patch.SharedIdleTimeout > 0 {
		c.SharedIdleTimeout = patch.SharedIdleTimeout
	}
	if patch.HostKey != "" {
		c.HostKey = patch.HostKey
	}
	if patch.Sink != nil {
		c.Sink = patch.Sink
	}
	if len(patch.Callbacks) > 0 {
		c.Callbacks = append(append([]envelope.Entry(nil), c.Callbacks...), patch.Callbacks...)
	}
	// bools and AutoReconnect/EnableVisibilityManagement/ForceNewOnStart/
	// EnableNetworkListener have no unset sentinel distinct from false, so
	// Merge can only turn them on: a false in patch never clears a true
	// already set (defaultConfig starts AutoReconnect and
	// EnableNetworkListener at true).
	c.AutoReconnect = patch.AutoReconnect || c.AutoReconnect
	c.EnableVisibilityManagement = patch.EnableVisibilityManagement || c.EnableVisibilityManagement
	c.ForceNewOnStart = patch.ForceNewOnStart || c.ForceNewOnStart
	c.EnableNetworkListener = patch.EnableNetworkListener || c.EnableNetworkListener
	return c
}

func defaultConfig() Config {
	return Config{
		HeartbeatInterval:     25_000 * time.Millisecond,
		MaxReconnectAttempts:  10,
		ReconnectDelay:        3_000 * time.Millisecond,
		ReconnectDelayMax:     10_000 * time.Millisecond,
		AutoReconnect:         true,
		HeartbeatMessage:      func() envelope.MessageEnvelope { return envelope.Heartbeat(time.Now().UnixMilli()) },
		ConnectionMode:        ModeAuto,
		SharedIdleTimeout:     30_000 * time.Millisecond,
		EnableNetworkListener: true,
		Sink:                  obs.New("facade", obs.LevelInfo, nil),
	}
}
