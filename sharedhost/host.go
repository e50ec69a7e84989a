package sharedhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/codec"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/port"
	"github.com/streamhub/streamhub/streamclient"
	"github.com/streamhub/streamhub/transport"
)

// Host is the SharedHost of spec §4.2: it owns exactly one upstream
// StreamClient and coordinates every attached tab. All mutable state
// (identity, tabs, caches, timers) is touched only by the run() goroutine,
// matching spec §5's single-threaded, event-driven context model — no
// field needs a mutex because there is exactly one goroutine that ever
// reads or writes them.
type Host struct {
	cfg  Config
	sink *obs.Sink

	events  chan any
	stopCh  chan struct{}
	doneCh  chan struct{}
	rootCtx context.Context
	cancel  context.CancelFunc

	listener net.Listener // non-nil if this Host claimed a cross-process socket

	// run()-goroutine-only state:
	identity          envelope.Identity
	hasIdentity       bool
	tabs              map[string]*TabRecord
	lastMessageByType map[string]envelope.MessageEnvelope
	upstream          *streamclient.Client
	openedAt          time.Time
	idleTimer         *time.Timer
	fastCloseCount    int
	suspendedUntil    time.Time
}

// New constructs a Host. Call Run to start its event loop, then Serve for
// each tab port that attaches.
func New(cfg Config) *Host {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		cfg:               cfg,
		sink:              cfg.Sink,
		events:            make(chan any, 64),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		rootCtx:           ctx,
		cancel:            cancel,
		tabs:              make(map[string]*TabRecord),
		lastMessageByType: make(map[string]envelope.MessageEnvelope),
	}
}

// Run starts the Host's single event-loop goroutine. It returns
// immediately; call Wait or rely on Close to observe shutdown.
func (h *Host) Run() {
	if h.cfg.Persister != nil {
		if id, cache, err := h.cfg.Persister.Load(); err == nil && !id.IsZero() {
			h.identity = id
			h.hasIdentity = true
			h.lastMessageByType = cache
		}
	}
	go h.run()
}

// Wait blocks until the Host has fully shut down.
func (h *Host) Wait() { <-h.doneCh }

// Close shuts the Host down: drops the upstream, clears all tabs, closes
// every port, and (if claimed) releases the socket (spec §4.2
// TAB_FORCE_SHUTDOWN semantics, invoked programmatically).
func (h *Host) Close() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
	<-h.doneCh
}

func (h *Host) postEvent(ev any) {
	select {
	case h.events <- ev:
	case <-h.rootCtx.Done():
	}
}

// Serve attaches a tab over p: a goroutine reads frames from p and feeds
// them to the event loop in order (spec §5: single port, send order).
func (h *Host) Serve(p port.Port) {
	go h.readPort(p)
}

func (h *Host) readPort(p port.Port) {
	var lastTabID string
	for {
		frame, err := p.Recv(h.rootCtx)
		if err != nil {
			h.postEvent(portClosedEvent{tabID: lastTabID})
			return
		}
		var tm envelope.TabMessage
		if derr := codec.Decode(frame, &tm); derr != nil {
			h.sink.Warn("dropping malformed tab frame", "error", derr)
			continue
		}
		lastTabID = tm.TabID
		h.postEvent(tabMsgEvent{p: p, msg: tm})
	}
}

type tabMsgEvent struct {
	p   port.Port
	msg envelope.TabMessage
}

type portClosedEvent struct{ tabID string }

type upstreamOpenEvent struct{}
type upstreamCloseEvent struct{ info transport.CloseInfo }
type upstreamErrorEvent struct{ err error }
type upstreamFrameEvent struct{ env envelope.MessageEnvelope }

type snapshotRequest struct{ reply chan Snapshot }

// Snapshot is a point-in-time, concurrency-safe view of Host state.
type Snapshot struct {
	HasIdentity    bool
	Identity       envelope.Identity
	TabCount       int
	VisibleTabs    int
	UpstreamOpen   bool
	Suspended      bool
	FastCloseCount int
}

// Snapshot returns a consistent snapshot of the Host's state by routing a
// request through the event loop (the only way any goroutine other than
// run() ever observes this state).
func (h *Host) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	h.postEvent(snapshotRequest{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-h.doneCh:
		return Snapshot{}
	}
}

func (h *Host) run() {
	defer close(h.doneCh)
	defer h.teardown()

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case ev := <-h.events:
			h.handleEvent(ev)
		case <-sweep.C:
			h.staleSweep()
		}
	}
}

func (h *Host) teardown() {
	h.cancel()
	if h.upstream != nil {
		h.upstream.Shutdown()
		h.upstream = nil
	}
	for _, t := range h.tabs {
		t.port.Close()
	}
	h.tabs = nil
	if h.listener != nil {
		h.listener.Close()
	}
}

// SocketPath derives the stable path a Host for key binds to, the direct
// analogue of spec §6's "byte-identical script URL across tabs" — every
// process that should share one upstream must pass the same key. Tabs use
// it to find (or race to become) the Host.
func SocketPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := fmt.Sprintf("streamhub-%s.sock", hex.EncodeToString(sum[:8]))
	return filepath.Join(os.TempDir(), name)
}

// Claim attempts to become the Host for the shared key: it binds a Unix
// socket at a path derived from key. If this process wins the race, it
// returns (host, true, nil) with Run already called and Serve wired to
// accept incoming tab connections automatically. If another process
// already owns the key, it returns (nil, false, nil) so the caller should
// use sharedclient.Dial(key) to attach as a tab instead.
func Claim(cfg Config, key string) (*Host, bool, error) {
	path := SocketPath(key)
	ln, err := net.Listen("unix", path)
	if err != nil {
		if isAddrInUse(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sharedhost: claim %q: %w", key, err)
	}
	h := New(cfg)
	h.listener = ln
	h.Run()
	go h.acceptLoop(ln)
	return h, true, nil
}

func (h *Host) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		h.Serve(port.NetPort(conn))
	}
}

func isAddrInUse(err error) bool {
	return err != nil && containsAddrInUse(err.Error())
}

func containsAddrInUse(s string) bool {
	for _, sub := range []string{"address already in use", "bind: address already in use"} {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
