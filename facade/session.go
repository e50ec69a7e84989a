package facade

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/internal/obs"
	"github.com/streamhub/streamhub/sharedclient"
	"github.com/streamhub/streamhub/streamclient"
)

// Hooks are the mode-independent lifecycle callbacks a Session reports
// through, regardless of which underlying component is actually driving
// the connection (spec §4.4).
type Hooks struct {
	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
	OnAuthConflict func(currentUserID, newUserID, explanation string)
}

type stagedEntry struct {
	id    string
	entry envelope.Entry
}

// Session is a Facade instance (spec §4.4), presented as a constructable
// type per spec §9's note that this is preferred in statically typed
// implementations. See Default for the singleton-flavored alternative.
type Session struct {
	mu    sync.Mutex
	cfg   Config
	caps  Capabilities
	hooks Hooks

	identity    envelope.Identity
	hasIdentity bool
	started     bool
	mode        Mode
	degraded    bool // this start cycle already degraded once

	direct *streamclient.Client
	shared *sharedclient.Client

	subs         []stagedEntry
	componentIDs map[string]string // our subscription id -> component's id

	rootCtx context.Context
	cancel  context.CancelFunc
}

// New constructs a standalone Session with default configuration and
// capabilities.
func New() *Session {
	return &Session{
		cfg:          defaultConfig(),
		caps:         defaultCapabilities(),
		componentIDs: make(map[string]string),
	}
}

// SetConfig merges patch into the Session's configuration (spec §4.4).
func (s *Session) SetConfig(patch Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = s.cfg.Merge(patch)
}

// SetCapabilities overrides the capability probes (SPEC_FULL §7 — the
// injectable predicates spec §4.4 calls for).
func (s *Session) SetCapabilities(caps Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

// SetHooks installs the Session's lifecycle hooks.
func (s *Session) SetHooks(hooks Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hooks
}

// RegisterCallback stages entry if the Session hasn't started yet, or
// forwards it to the active component immediately otherwise (spec §4.4:
// "staged before start, forwarded after start").
func (s *Session) RegisterCallback(entry envelope.Entry) (string, error) {
	if !entry.Valid() {
		return "", errs.ErrInvalidSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rand.Text()
	s.subs = append(s.subs, stagedEntry{id: id, entry: entry})
	if s.started {
		cid, err := s.forwardOne(entry)
		if err != nil {
			return "", err
		}
		s.componentIDs[id] = cid
	}
	return id, nil
}

// SetCallbacks registers every entry in list (spec §4.4).
func (s *Session) SetCallbacks(list []envelope.Entry) ([]string, error) {
	ids := make([]string, 0, len(list))
	for _, e := range list {
		id, err := s.RegisterCallback(e)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UnregisterCallback removes a staged/forwarded subscription by its
// Session-issued id, or every subscription for messageType if id is empty.
func (s *Session) UnregisterCallback(messageType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.subs[:0]
	for _, se := range s.subs {
		if se.entry.Type != messageType || (id != "" && se.id != id) {
			out = append(out, se)
			continue
		}
		if cid, ok := s.componentIDs[se.id]; ok {
			s.offActive(se.entry.Type, cid)
			delete(s.componentIDs, se.id)
		}
	}
	s.subs = out
}

func (s *Session) forwardOne(entry envelope.Entry) (string, error) {
	switch {
	case s.shared != nil:
		return s.shared.OnEntry(entry)
	case s.direct != nil:
		return s.direct.OnEntry(entry)
	default:
		return "", nil
	}
}

func (s *Session) offActive(messageType, componentID string) {
	switch {
	case s.shared != nil:
		_ = s.shared.Off(messageType, componentID)
	case s.direct != nil:
		s.direct.Off(messageType, componentID)
	}
}

// IsConnected reports whether the active component currently considers
// the stream open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.shared != nil:
		return s.shared.IsConnected()
	case s.direct != nil:
		return s.direct.IsOpen()
	default:
		return false
	}
}

// CurrentMode returns the mode selected by the most recent Start.
func (s *Session) CurrentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CurrentUserID returns the identity userID of the active session, or "".
func (s *Session) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.UserID
}

// CurrentCredential returns the identity credential of the active
// session, or "".
func (s *Session) CurrentCredential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Credential
}

// Send forwards data to the active component (spec §4.4).
func (s *Session) Send(data any) error {
	s.mu.Lock()
	shared, direct := s.shared, s.direct
	s.mu.Unlock()
	switch {
	case shared != nil:
		return shared.Send(data)
	case direct != nil:
		return direct.Send(data)
	default:
		return errs.ErrSendUnavailable
	}
}

func (s *Session) sink() *obs.Sink { return s.cfg.Sink }

func hostKeyFor(cfg Config) string {
	if cfg.HostKey != "" {
		return cfg.HostKey
	}
	return fmt.Sprintf("streamhub:%s", cfg.URL)
}
