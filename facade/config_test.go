package facade

import (
	"testing"
	"time"

	"github.com/streamhub/streamhub/envelope"
)

func TestMergeOverlaysNonZeroFields(t *testing.T) {
	base := defaultConfig()
	patch := Config{URL: "wss://example.com", HeartbeatInterval: time.Minute}
	merged := base.Merge(patch)

	if merged.URL != "wss://example.com" {
		t.Errorf("URL = %q, want patched value", merged.URL)
	}
	if merged.HeartbeatInterval != time.Minute {
		t.Errorf("HeartbeatInterval = %v, want patched value", merged.HeartbeatInterval)
	}
	if merged.ReconnectDelay != base.ReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want unchanged base value %v", merged.ReconnectDelay, base.ReconnectDelay)
	}
}

func TestMergeBoolsAreStickyOnceTrue(t *testing.T) {
	base := Config{ForceNewOnStart: true}
	merged := base.Merge(Config{})
	if !merged.ForceNewOnStart {
		t.Error("Merge with a zero-value bool patch cleared a previously-set true")
	}
}

func TestMergeAppendsCallbacks(t *testing.T) {
	entry := envelope.Entry{Type: "ORDER", Callback: func(any, envelope.MessageEnvelope) {}}
	base := Config{Callbacks: []envelope.Entry{entry}}
	merged := base.Merge(Config{Callbacks: []envelope.Entry{entry}})
	if len(merged.Callbacks) != 2 {
		t.Errorf("len(Callbacks) = %d, want 2 after merging a one-entry patch onto a one-entry base", len(merged.Callbacks))
	}
}

func TestMergeLeavesCallbacksUntouchedWhenPatchEmpty(t *testing.T) {
	entry := envelope.Entry{Type: "ORDER", Callback: func(any, envelope.MessageEnvelope) {}}
	base := Config{Callbacks: []envelope.Entry{entry}}
	merged := base.Merge(Config{})
	if len(merged.Callbacks) != 1 {
		t.Errorf("len(Callbacks) = %d, want 1 when patch has no callbacks", len(merged.Callbacks))
	}
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := defaultConfig()
	if cfg.ConnectionMode != ModeAuto {
		t.Errorf("ConnectionMode = %q, want %q", cfg.ConnectionMode, ModeAuto)
	}
	if !cfg.AutoReconnect {
		t.Error("AutoReconnect default = false, want true")
	}
	if cfg.HeartbeatInterval != 25_000*time.Millisecond {
		t.Errorf("HeartbeatInterval = %v, want 25s", cfg.HeartbeatInterval)
	}
	if cfg.Sink == nil {
		t.Error("defaultConfig left Sink nil")
	}
}
