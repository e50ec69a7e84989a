package envelope

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeDropsMissingType(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"no type field", `{"data":1}`},
		{"empty type", `{"type":"","data":1}`},
		{"non-string type", `{"type":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, ok, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ok {
				t.Fatalf("Decode(%q) ok = true, want false; env=%+v", tt.frame, env)
			}
		})
	}
}

func TestDecodeSyntaxErrorReported(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Fatal("Decode: want error for invalid JSON, got nil")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := MessageEnvelope{
		Type:      "ORDER_UPDATE",
		Data:      map[string]any{"id": "abc"},
		Meta:      map[string]any{"seq": float64(3)},
		Timestamp: 1700000000000,
	}
	frame, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, ok, err := Decode(frame)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHeartbeat(t *testing.T) {
	hb := Heartbeat(12345)
	if hb.Type != "PING" || hb.Timestamp != 12345 {
		t.Errorf("Heartbeat(12345) = %+v, want Type=PING Timestamp=12345", hb)
	}
}

func TestEntryValid(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		want bool
	}{
		{"valid", Entry{Type: "X", Callback: func(any, MessageEnvelope) {}}, true},
		{"missing type", Entry{Callback: func(any, MessageEnvelope) {}}, false},
		{"missing callback", Entry{Type: "X"}, false},
		{"zero value", Entry{}, false},
	}
	for _, tt := range tests {
		if got := tt.e.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
