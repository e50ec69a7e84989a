package sharedhost

import (
	"time"

	"github.com/streamhub/streamhub/internal/obs"
)

// Config configures a Host's policies (spec §4.2, §5).
type Config struct {
	// IdleTimeout is how long the upstream stays open after the last
	// visible tab goes hidden before it is closed. Default 30000ms.
	IdleTimeout time.Duration

	// SweepInterval is how often the stale-tab sweep runs. Default 15000ms.
	SweepInterval time.Duration
	// StaleAfter is how long without activity before a tab is reaped.
	// Default 45000ms.
	StaleAfter time.Duration

	// FastCloseWindow is the "fast close" threshold: a clean close within
	// this long of open counts toward the circuit breaker. Default 3000ms.
	FastCloseWindow time.Duration
	// FastCloseThreshold is how many consecutive fast closes trip the
	// breaker. Default 3.
	FastCloseThreshold int
	// SuspendDuration is how long reconnection is suspended once tripped.
	// Default 60000ms.
	SuspendDuration time.Duration

	// TabFanoutLimit, if > 0, caps messages/sec delivered to any one tab
	// (SPEC_FULL §5 supplement; 0 disables limiting).
	TabFanoutLimit float64

	Persister Persister
	Sink      *obs.Sink
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30_000 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15_000 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 45_000 * time.Millisecond
	}
	if c.FastCloseWindow <= 0 {
		c.FastCloseWindow = 3_000 * time.Millisecond
	}
	if c.FastCloseThreshold <= 0 {
		c.FastCloseThreshold = 3
	}
	if c.SuspendDuration <= 0 {
		c.SuspendDuration = 60_000 * time.Millisecond
	}
	if c.Sink == nil {
		c.Sink = obs.New("sharedhost", obs.LevelInfo, nil)
	}
	return c
}
