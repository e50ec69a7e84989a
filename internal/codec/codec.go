// Package codec provides the wire codec for MessageEnvelope frames.
//
// It adapts internal/jsonrpc2/strict.go's StrictUnmarshal duplicate-key
// guard: inbound frames are first checked for case-variant duplicate keys
// (a field-name smuggling defense), then decoded permissively, since this
// envelope allows arbitrary `data`/`meta` and must not reject unknown
// fields the way that strict JSON-RPC decoder does.
package codec

import (
	"fmt"

	json "github.com/segmentio/encoding/json"
)

// Encode marshals v using the project-wide JSON codec.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals data into v after rejecting case-variant duplicate keys.
func Decode(data []byte, v any) error {
	if err := checkNoDuplicateKeys(data); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	return json.Unmarshal(data, v)
}

// checkNoDuplicateKeys rejects JSON objects containing keys that differ
// only in case (e.g. both "type" and "Type"), recursively. This mirrors
// jsonrpc2.validateNoDuplicateKeys but is kept standalone since the
// envelope codec does not need the rest of jsonrpc2's strict-field-name
// machinery.
func checkNoDuplicateKeys(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not a JSON object: arrays/scalars can't have duplicate keys.
		return nil
	}
	return checkNoDuplicateKeysRecursive(raw)
}

func checkNoDuplicateKeysRecursive(obj map[string]json.RawMessage) error {
	seen := make(map[string]string, len(obj))
	for key := range obj {
		lower := toLower(key)
		if original, ok := seen[lower]; ok && original != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
		}
		seen[lower] = key
	}
	for key, val := range obj {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(val, &nested); err == nil {
			if err := checkNoDuplicateKeysRecursive(nested); err != nil {
				return fmt.Errorf("in field %q: %w", key, err)
			}
			continue
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(val, &arr); err == nil {
			for i, elem := range arr {
				var elemObj map[string]json.RawMessage
				if err := json.Unmarshal(elem, &elemObj); err == nil {
					if err := checkNoDuplicateKeysRecursive(elemObj); err != nil {
						return fmt.Errorf("in field %q[%d]: %w", key, i, err)
					}
				}
			}
		}
	}
	return nil
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
