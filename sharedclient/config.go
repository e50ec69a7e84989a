// Package sharedclient implements the per-tab proxy of spec §4.3: it
// speaks the TAB_*/WORKER_* protocol over a port.Port to a sharedhost.Host
// (in-process or cross-process), translating it back into the same
// subscribe/send/lifecycle-hook surface as streamclient.Client so a
// facade can swap between the two transparently (spec §4.4).
//
// Grounded on mcp/session.go's client-side session wrapper conventions
// and examples/client/websocket/main.go's dial-then-serve shape.
package sharedclient

import (
	"time"

	"github.com/streamhub/streamhub/internal/obs"
)

// Config configures a Client (SPEC_FULL §6).
type Config struct {
	// DialTimeout bounds the initial Unix-socket dial used to find an
	// existing Host. Default 2000ms.
	DialTimeout time.Duration
	// HeartbeatInterval is how often TAB_PING is sent to the Host, the
	// translation of spec §4.3's periodic liveness ping. Default 10000ms.
	HeartbeatInterval time.Duration
	// IdleTimeoutMillis is advertised to the Host in TAB_INIT so it can
	// apply its own idle-shutdown policy (spec §4.2). 0 uses the Host's
	// default.
	IdleTimeoutMillis int64

	Sink *obs.Sink
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2_000 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10_000 * time.Millisecond
	}
	if c.Sink == nil {
		c.Sink = obs.New("sharedclient", obs.LevelInfo, nil)
	}
	return c
}
