package sharedclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/internal/testsupport"
	"github.com/streamhub/streamhub/port"
)

func testSink() *obs.Sink { return obs.New("test", obs.LevelSilent, nil) }

// uniqueKey avoids collisions between test cases sharing the same socket
// namespace (sharedhost.Claim binds a Unix socket derived from the key).
func uniqueKey(t *testing.T) string {
	return fmt.Sprintf("sharedclient-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestDialClaimsHostWhenNoneExists(t *testing.T) {
	key := uniqueKey(t)

	c, err := Dial(context.Background(), key, envelope.Identity{BaseURL: "ws://127.0.0.1:1/x", UserID: "u1"}, true,
		Config{Sink: testSink()}, Hooks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Stop()
	if c.IsConnected() {
		t.Error("IsConnected() = true immediately after Dial against an unreachable upstream")
	}
}

func TestDialSecondTabJoinsExistingHost(t *testing.T) {
	key := uniqueKey(t)
	stub := testsupport.StartStreamServer()
	defer stub.Stop()

	identity := envelope.Identity{BaseURL: stub.URL(), UserID: "u1"}

	var mu sync.Mutex
	var connectedCount int
	onConnected := func() {
		mu.Lock()
		connectedCount++
		mu.Unlock()
	}

	first, err := Dial(context.Background(), key, identity, true, Config{Sink: testSink()}, Hooks{OnConnected: onConnected})
	if err != nil {
		t.Fatalf("Dial (first): %v", err)
	}
	defer first.Stop()

	second, err := Dial(context.Background(), key, identity, true, Config{Sink: testSink()}, Hooks{OnConnected: onConnected})
	if err != nil {
		t.Fatalf("Dial (second): %v", err)
	}
	defer second.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := connectedCount
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("want both tabs to observe OnConnected, got %d", connectedCount)
}

func TestOnReceivesDeliveredMessages(t *testing.T) {
	key := uniqueKey(t)
	stub := testsupport.StartStreamServer()
	defer stub.Stop()

	identity := envelope.Identity{BaseURL: stub.URL(), UserID: "u1"}
	c, err := Dial(context.Background(), key, identity, true, Config{Sink: testSink()}, Hooks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Stop()

	received := make(chan envelope.MessageEnvelope, 1)
	if _, err := c.On("ECHO", func(data any, env envelope.MessageEnvelope) {
		received <- env
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !c.IsConnected() {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Fatal("client never reported connected")
	}

	if err := c.Send(map[string]any{"type": "ECHO", "data": "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-received:
		if env.Type != "ECHO" {
			t.Errorf("received envelope type = %q, want ECHO", env.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ECHO round trip")
	}
}

// newLoopbackClient builds a Client wired to one end of an in-process
// port.Pair, bypassing Dial's socket-claiming so tests can drive resubscribe
// and inspect exactly what it sends on the other end.
func newLoopbackClient(t *testing.T, identity envelope.Identity, visible bool) (*Client, port.Port) {
	t.Helper()
	a, b := port.Pair(8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := &Client{
		cfg:      Config{Sink: testSink()}.withDefaults(),
		tabID:    "tab-1",
		p:        a,
		subs:     make(map[string][]envelope.Subscription),
		identity: identity,
		visible:  visible,
		rootCtx:  ctx,
		cancel:   cancel,
	}
	return c, b
}

func recvTabMessage(t *testing.T, p port.Port) envelope.TabMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := p.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	var tm envelope.TabMessage
	if err := codec.Decode(frame, &tm); err != nil {
		t.Fatalf("decode TabMessage: %v", err)
	}
	return tm
}

func TestResubscribeResendsStoredIdentity(t *testing.T) {
	identity := envelope.Identity{BaseURL: "ws://host/stream", UserID: "u1", Credential: "tok"}
	c, peer := newLoopbackClient(t, identity, true)

	c.resubscribe()

	tm := recvTabMessage(t, peer)
	if tm.Kind != envelope.TabInit {
		t.Fatalf("Kind = %q, want TAB_INIT", tm.Kind)
	}
	var payload envelope.TabInitPayload
	if err := codec.Decode(mustEncode(t, tm.Payload), &payload); err != nil {
		t.Fatalf("decode TabInitPayload: %v", err)
	}
	if payload.BaseURL != identity.BaseURL || payload.UserID != identity.UserID || payload.Credential != identity.Credential {
		t.Errorf("resent TAB_INIT payload = %+v, want it to carry the originally-dialed identity %+v", payload, identity)
	}
}

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := codec.Encode(v)
	if err != nil {
		t.Fatalf("codec.Encode: %v", err)
	}
	return raw
}

func TestSetVisibleTrueWhileDisconnectedResendsInitFirst(t *testing.T) {
	identity := envelope.Identity{BaseURL: "ws://host/stream", UserID: "u1", Credential: "tok"}
	c, peer := newLoopbackClient(t, identity, false)
	c.open = false

	if _, err := c.OnEntry(envelope.Entry{Type: "ECHO", Callback: func(any, envelope.MessageEnvelope) {}}); err != nil {
		t.Fatalf("OnEntry: %v", err)
	}
	// Drain the TAB_REGISTER_CALLBACK sent by OnEntry before the visibility
	// transition under test.
	recvTabMessage(t, peer)

	if err := c.SetVisible(true); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}

	first := recvTabMessage(t, peer)
	if first.Kind != envelope.TabInit {
		t.Fatalf("first frame after SetVisible(true) while disconnected = %q, want TAB_INIT", first.Kind)
	}
	var payload envelope.TabInitPayload
	if err := codec.Decode(mustEncode(t, first.Payload), &payload); err != nil {
		t.Fatalf("decode TabInitPayload: %v", err)
	}
	if payload.UserID != identity.UserID {
		t.Errorf("reconstructed TAB_INIT UserID = %q, want %q", payload.UserID, identity.UserID)
	}

	second := recvTabMessage(t, peer)
	if second.Kind != envelope.TabRegisterCallback {
		t.Fatalf("second frame = %q, want the replayed TAB_REGISTER_CALLBACK", second.Kind)
	}

	third := recvTabMessage(t, peer)
	if third.Kind != envelope.TabVisibility {
		t.Fatalf("third frame = %q, want TAB_VISIBILITY", third.Kind)
	}
}

func TestSetVisibleTrueWhileConnectedDoesNotResendInit(t *testing.T) {
	identity := envelope.Identity{BaseURL: "ws://host/stream", UserID: "u1"}
	c, peer := newLoopbackClient(t, identity, false)
	c.open = true

	if err := c.SetVisible(true); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}

	only := recvTabMessage(t, peer)
	if only.Kind != envelope.TabVisibility {
		t.Fatalf("Kind = %q, want TAB_VISIBILITY (no reconstruction while already connected)", only.Kind)
	}
}

func TestOffStopsDelivery(t *testing.T) {
	key := uniqueKey(t)
	c, err := Dial(context.Background(), key, envelope.Identity{BaseURL: "ws://127.0.0.1:1/x", UserID: "u1"}, true,
		Config{Sink: testSink()}, Hooks{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Stop()

	id, err := c.On("X", func(any, envelope.MessageEnvelope) {})
	if err != nil {
		t.Fatalf("On: %v", err)
	}
	if err := c.Off("X", id); err != nil {
		t.Fatalf("Off: %v", err)
	}
	c.mu.Lock()
	_, stillPresent := c.subs["X"]
	c.mu.Unlock()
	if stillPresent {
		t.Error("subscription still tracked locally after Off")
	}
}
