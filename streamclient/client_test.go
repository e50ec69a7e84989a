package streamclient

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/transport"
)

// fakeConn is an in-memory transport.Conn: Write appends to sent, Read
// drains a channel the test feeds, so tests can drive the dispatch loop
// without a real socket.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	inbox  chan []byte
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-f.inbox:
		if !ok {
			return nil, &transport.CloseError{Info: transport.CloseInfo{Code: 1000, Clean: true}}
		}
		return frame, nil
	case <-f.closed:
		return nil, &transport.CloseError{Info: transport.CloseInfo{Code: 1000, Clean: true}}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) push(frame []byte) { f.inbox <- frame }

func (f *fakeConn) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func testSink() *obs.Sink { return obs.New("test", obs.LevelSilent, nil) }

func dialerFor(conns chan *fakeConn) Dialer {
	return func(ctx context.Context, url string, header http.Header) (transport.Conn, error) {
		c := newFakeConn()
		conns <- c
		return c, nil
	}
}

func waitOpen(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.IsOpen() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client never reached Open")
}

func TestConnectOpensAndInvokesOnOpen(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	opened := make(chan struct{}, 1)
	c := New(Config{Dial: dialerFor(conns), Sink: testSink()}, Hooks{
		OnOpen: func() { opened <- struct{}{} },
	})
	defer c.Shutdown()

	c.Connect("ws://fake/stream")
	waitOpen(t, c)

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("OnOpen never fired")
	}
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	c := New(Config{Dial: dialerFor(conns), Sink: testSink()}, Hooks{})
	defer c.Shutdown()

	c.Connect("ws://fake/stream")
	waitOpen(t, c)
	c.Connect("ws://fake/stream")

	select {
	case <-conns:
	case <-time.After(time.Second):
		t.Fatal("expected exactly one dial")
	}
	select {
	case <-conns:
		t.Fatal("Connect while already open dialed a second time")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchDeliversTypedAndWildcard(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	c := New(Config{Dial: dialerFor(conns), Sink: testSink()}, Hooks{})
	defer c.Shutdown()

	var typedCount, wildcardCount int
	var mu sync.Mutex
	c.On("ORDER", func(data any, env envelope.MessageEnvelope) {
		mu.Lock()
		typedCount++
		mu.Unlock()
	})
	c.On(AllTypes, func(data any, env envelope.MessageEnvelope) {
		mu.Lock()
		wildcardCount++
		mu.Unlock()
	})

	c.Connect("ws://fake/stream")
	waitOpen(t, c)
	conn := <-conns
	conn.push([]byte(`{"type":"ORDER","data":1}`))
	conn.push([]byte(`{"type":"OTHER","data":2}`))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := typedCount == 1 && wildcardCount == 2
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	t.Fatalf("typedCount=%d wildcardCount=%d, want 1 and 2", typedCount, wildcardCount)
}

func TestSendFailsWhenNotOpen(t *testing.T) {
	c := New(Config{Sink: testSink()}, Hooks{})
	defer c.Shutdown()
	if err := c.Send("hi"); err != errs.ErrSendUnavailable {
		t.Errorf("Send() = %v, want ErrSendUnavailable", err)
	}
}

func TestSendMarshalsNonStringPayloadAsJSON(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	c := New(Config{Dial: dialerFor(conns), Sink: testSink()}, Hooks{})
	defer c.Shutdown()

	c.Connect("ws://fake/stream")
	waitOpen(t, c)
	conn := <-conns

	if err := c.Send(map[string]any{"type": "ORDER", "data": 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(conn.writes()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	writes := conn.writes()
	if len(writes) != 1 {
		t.Fatalf("len(writes) = %d, want 1", len(writes))
	}
	if got := string(writes[0]); got != `{"data":1,"type":"ORDER"}` {
		t.Errorf("written frame = %s, want the plain JSON marshal of the payload", got)
	}
}

func TestDisconnectThenConnectReopens(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	c := New(Config{Dial: dialerFor(conns), Sink: testSink()}, Hooks{})
	defer c.Shutdown()

	c.Connect("ws://fake/stream")
	waitOpen(t, c)
	c.Disconnect()
	if c.IsOpen() {
		t.Fatal("IsOpen() true after Disconnect")
	}

	c.Connect("ws://fake/stream")
	waitOpen(t, c)
}

func TestOnRejectsInvalidEntry(t *testing.T) {
	c := New(Config{Sink: testSink()}, Hooks{})
	defer c.Shutdown()
	if _, err := c.On("", func(any, envelope.MessageEnvelope) {}); err != errs.ErrInvalidSubscription {
		t.Errorf("On with empty type = %v, want ErrInvalidSubscription", err)
	}
}

func TestOffRemovesOnlyMatchingSubscription(t *testing.T) {
	c := New(Config{Sink: testSink()}, Hooks{})
	defer c.Shutdown()
	var calledA, calledB bool
	idA, _ := c.On("X", func(any, envelope.MessageEnvelope) { calledA = true })
	_, _ = c.On("X", func(any, envelope.MessageEnvelope) { calledB = true })

	c.Off("X", idA)
	c.dispatch([]byte(`{"type":"X"}`))

	if calledA {
		t.Error("removed subscription A still invoked")
	}
	if !calledB {
		t.Error("remaining subscription B was not invoked")
	}
}
