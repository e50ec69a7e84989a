package facade

// Capabilities are the injectable predicates spec §4.4's "implementers
// should expose capability probes as injectable predicates to keep tests
// deterministic" calls for. Go has no DOM to introspect, so these replace
// feature-detection with explicit, test-friendly functions.
type Capabilities struct {
	// SharedSupported reports whether a cross-tab shared execution context
	// can be created. Defaults to true: any Go process can claim or dial a
	// sharedhost.Host.
	SharedSupported func() bool

	// Visible reports the current page-visibility state. A nil Visible
	// means visibility notifications aren't available, which makes
	// VisibilitySupported false by default.
	Visible func() bool
}

func (c Capabilities) sharedSupported() bool {
	if c.SharedSupported == nil {
		return true
	}
	return c.SharedSupported()
}

func (c Capabilities) visibilitySupported() bool {
	return c.Visible != nil
}

func defaultCapabilities() Capabilities {
	return Capabilities{SharedSupported: func() bool { return true }}
}
