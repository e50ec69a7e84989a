package streamclient

import (
	"context"
	"net/http"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/netwatch"
	"github.com/streamhub/streamhub/transport"
)

// Dialer opens a transport.Conn to url. Injectable so tests can substitute
// an in-memory transport instead of a real WebSocket dial.
type Dialer func(ctx context.Context, url string, header http.Header) (transport.Conn, error)

// Config configures a StreamClient (spec §4.4 lists the same fields at the
// Facade level; StreamClient owns the mechanism).
type Config struct {
	URL string

	// HeartbeatInterval is how often a heartbeat frame is emitted while
	// OPEN. Default 25000ms (spec §4.4 default for the Facade).
	HeartbeatInterval time.Duration
	// HeartbeatMessage builds the outbound heartbeat envelope. Defaults to
	// envelope.Heartbeat (spec §4.1).
	HeartbeatMessage func() envelope.MessageEnvelope

	// ReconnectDelay and ReconnectDelayMax parameterize the linear
	// backoff-with-clamp policy (spec §4.1): the n-th attempt waits
	// min(ReconnectDelay*n, ReconnectDelayMax).
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	// MaxReconnectAttempts is the ceiling before giving up (spec §7
	// ReconnectExhausted).
	MaxReconnectAttempts int
	// AutoReconnect disables the entire reconnect policy when explicitly
	// set to false. A nil value defaults to true (spec §4.4), matching
	// facade/configjson.go's nullable-bool pattern since a plain bool's
	// zero value can't be told apart from an explicit false.
	AutoReconnect *bool

	// EnableNetworkListener wires a netwatch.Watcher (spec §4.1 "network
	// awareness").
	EnableNetworkListener bool
	Watcher               netwatch.Watcher

	Header http.Header
	Dial   Dialer

	Sink *obs.Sink
}

// WithDefaults returns a copy of c with spec §4.4's defaults applied.
func (c Config) WithDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25_000 * time.Millisecond
	}
	if c.HeartbeatMessage == nil {
		c.HeartbeatMessage = func() envelope.MessageEnvelope {
			return envelope.Heartbeat(time.Now().UnixMilli())
		}
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3_000 * time.Millisecond
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = 10_000 * time.Millisecond
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.AutoReconnect == nil {
		enabled := true
		c.AutoReconnect = &enabled
	}
	if c.Dial == nil {
		c.Dial = transport.Dial
	}
	if c.Watcher == nil {
		if c.EnableNetworkListener && !netwatch.IsLoopbackAddr(c.URL) {
			c.Watcher = netwatch.NewPolling(netwatch.DefaultProbe(""), 5*time.Second)
		} else {
			c.Watcher = netwatch.Disabled()
		}
	}
	if c.Sink == nil {
		c.Sink = obs.New("streamclient", obs.LevelInfo, nil)
	}
	return c
}

// backoffDelay implements spec §4.1's linear-backoff-with-clamp: the n-th
// attempt (1-indexed) waits min(delay*n, max).
func backoffDelay(n int, delay, max time.Duration) time.Duration {
	d := delay * time.Duration(n)
	if d > max {
		return max
	}
	return d
}
