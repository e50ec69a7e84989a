package streamclient

// Stats is a snapshot of StreamClient bookkeeping (SPEC_FULL §4 — supplements
// spec.md with direct-mode observability, not excluded by any Non-goal).
type Stats struct {
	State    State
	Attempts int
}

// Stats returns a point-in-time snapshot.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{State: c.state, Attempts: c.attempts}
}
