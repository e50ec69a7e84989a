package facade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	js "github.com/google/jsonschema-go/jsonschema"
)

// jsonConfig is the wire shape accepted by LoadConfigJSON: spec §4.4's
// setConfig option names, with millisecond durations the way spec.md
// states its defaults.
type jsonConfig struct {
	URL                        string `json:"url"`
	HeartbeatInterval          int64  `json:"heartbeatInterval,omitempty"`
	MaxReconnectAttempts       int    `json:"maxReconnectAttempts,omitempty"`
	ReconnectDelay             int64  `json:"reconnectDelay,omitempty"`
	ReconnectDelayMax          int64  `json:"reconnectDelayMax,omitempty"`
	AutoReconnect              *bool  `json:"autoReconnect,omitempty"`
	EnableVisibilityManagement bool   `json:"enableVisibilityManagement,omitempty"`
	ConnectionMode             string `json:"connectionMode,omitempty"`
	SharedIdleTimeout          int64  `json:"sharedIdleTimeout,omitempty"`
	ForceNewOnStart            bool   `json:"forceNewOnStart,omitempty"`
	EnableNetworkListener      *bool  `json:"enableNetworkListener,omitempty"`
	HostKey                    string `json:"hostKey,omitempty"`
}

var configSchema *js.Resolved

func init() {
	schema, err := js.For[jsonConfig](nil)
	if err != nil {
		panic(fmt.Sprintf("facade: building config schema: %v", err))
	}
	resolved, err := schema.Resolve(&js.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		panic(fmt.Sprintf("facade: resolving config schema: %v", err))
	}
	configSchema = resolved
}

// LoadConfigJSON parses and validates a JSON document against the
// generated schema for setConfig's recognized options (SPEC_FULL §1, §4.4)
// before merging it into a Config. Unknown fields are rejected so a typo
// in a deployed config file fails loudly instead of being silently
// ignored.
func LoadConfigJSON(data []byte) (Config, error) {
	var doc jsonConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Config{}, fmt.Errorf("facade: parsing config json: %w", err)
	}
	if err := configSchema.Validate(&doc); err != nil {
		return Config{}, fmt.Errorf("facade: invalid config: %w", err)
	}

	cfg := Config{
		URL:                        doc.URL,
		HeartbeatInterval:          time.Duration(doc.HeartbeatInterval) * time.Millisecond,
		MaxReconnectAttempts:       doc.MaxReconnectAttempts,
		ReconnectDelay:             time.Duration(doc.ReconnectDelay) * time.Millisecond,
		ReconnectDelayMax:          time.Duration(doc.ReconnectDelayMax) * time.Millisecond,
		EnableVisibilityManagement: doc.EnableVisibilityManagement,
		ConnectionMode:             Mode(doc.ConnectionMode),
		SharedIdleTimeout:          time.Duration(doc.SharedIdleTimeout) * time.Millisecond,
		ForceNewOnStart:            doc.ForceNewOnStart,
		HostKey:                    doc.HostKey,
	}
	if doc.AutoReconnect != nil {
		cfg.AutoReconnect = *doc.AutoReconnect
	}
	if doc.EnableNetworkListener != nil {
		cfg.EnableNetworkListener = *doc.EnableNetworkListener
	}
	return cfg, nil
}
