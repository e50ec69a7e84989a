package facade

import (
	"testing"
	"time"
)

func TestLoadConfigJSONParsesRecognizedFields(t *testing.T) {
	doc := []byte(`{
		"url": "wss://example.com/stream",
		"heartbeatInterval": 15000,
		"maxReconnectAttempts": 4,
		"connectionMode": "direct",
		"autoReconnect": false,
		"hostKey": "room-1"
	}`)
	cfg, err := LoadConfigJSON(doc)
	if err != nil {
		t.Fatalf("LoadConfigJSON: %v", err)
	}
	if cfg.URL != "wss://example.com/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 15s", cfg.HeartbeatInterval)
	}
	if cfg.MaxReconnectAttempts != 4 {
		t.Errorf("MaxReconnectAttempts = %d, want 4", cfg.MaxReconnectAttempts)
	}
	if cfg.ConnectionMode != ModeDirect {
		t.Errorf("ConnectionMode = %q, want %q", cfg.ConnectionMode, ModeDirect)
	}
	if cfg.AutoReconnect {
		t.Error("AutoReconnect = true, want the explicit false to survive parsing")
	}
	if cfg.HostKey != "room-1" {
		t.Errorf("HostKey = %q, want room-1", cfg.HostKey)
	}
}

func TestLoadConfigJSONRejectsMalformedJSON(t *testing.T) {
	if _, err := LoadConfigJSON([]byte(`{not json`)); err == nil {
		t.Error("LoadConfigJSON with malformed JSON succeeded, want an error")
	}
}
