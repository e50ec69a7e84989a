package facade

import (
	"context"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/internal/errs"
	"github.com/streamhub/streamhub/sharedclient"
	"github.com/streamhub/streamhub/streamclient"
	"github.com/streamhub/streamhub/transport"
)

// Start validates configuration, selects a mode, tears down any prior
// connection whose identity differs, stands up the chosen component, and
// replays staged subscriptions (spec §4.4).
//
// A second Start with the same identity while already started is a no-op
// unless ForceNewOnStart is set, per spec §9's adopted resolution of the
// double-start ambiguity. Start fails with ErrConfigMissing when no URL is
// configured or identity has no UserID.
func (s *Session) Start(identity envelope.Identity) error {
	s.mu.Lock()
	if identity.BaseURL == "" {
		identity.BaseURL = s.cfg.URL
	}
	if s.started && s.hasIdentity && s.identity.Equal(identity) && !s.cfg.ForceNewOnStart {
		s.mu.Unlock()
		return nil
	}
	if s.started {
		s.mu.Unlock()
		s.Stop()
		s.mu.Lock()
	}
	if (s.cfg.URL == "" && identity.BaseURL == "") || identity.UserID == "" {
		s.mu.Unlock()
		return errs.ErrConfigMissing
	}

	s.identity = identity
	s.hasIdentity = true
	s.degraded = false
	ctx, cancel := context.WithCancel(context.Background())
	s.rootCtx, s.cancel = ctx, cancel
	mode := s.selectMode()
	s.mu.Unlock()

	if err := s.attach(mode); err != nil {
		return err
	}

	s.mu.Lock()
	s.started = true
	pending := append([]stagedEntry(nil), s.subs...)
	s.mu.Unlock()
	for _, se := range pending {
		cid, err := s.forwardOne(se.entry)
		if err != nil {
			s.sink().Warn("replay subscription failed", "type", se.entry.Type, "error", err)
			continue
		}
		s.mu.Lock()
		s.componentIDs[se.id] = cid
		s.mu.Unlock()
	}
	return nil
}

// selectMode implements spec §4.4's deterministic mode-selection table.
func (s *Session) selectMode() Mode {
	switch s.cfg.ConnectionMode {
	case ModeShared:
		if s.caps.sharedSupported() {
			return ModeShared
		}
		s.sink().Warn("shared mode unsupported, degrading", "to", "visibility")
		return s.visibilityOrDirect()
	case ModeVisibility:
		return s.visibilityOrDirect()
	case ModeDirect:
		return ModeDirect
	default:
		if s.caps.sharedSupported() {
			return ModeShared
		}
		if s.caps.visibilitySupported() && s.cfg.EnableVisibilityManagement {
			return ModeVisibility
		}
		return ModeDirect
	}
}

func (s *Session) visibilityOrDirect() Mode {
	if s.caps.visibilitySupported() {
		return ModeVisibility
	}
	s.sink().Warn("visibility mode unsupported, degrading", "to", "direct")
	return ModeDirect
}

// attach stands up the component for mode. A shared-mode failure degrades
// one-way to visibility and retries with the same identity (spec §4.4).
func (s *Session) attach(mode Mode) error {
	switch mode {
	case ModeShared:
		if err := s.attachShared(); err != nil {
			s.mu.Lock()
			already := s.degraded
			s.degraded = true
			s.mu.Unlock()
			if already {
				return err
			}
			s.sink().Warn("shared attach failed, degrading to visibility", "error", err)
			return s.attach(ModeVisibility)
		}
		s.setMode(ModeShared)
		return nil
	case ModeVisibility:
		s.attachDirect(true)
		s.setMode(ModeVisibility)
		return nil
	default:
		s.attachDirect(false)
		s.setMode(ModeDirect)
		return nil
	}
}

func (s *Session) setMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *Session) attachShared() error {
	s.mu.Lock()
	identity := s.identity
	key := hostKeyFor(s.cfg)
	visible := true
	if s.caps.Visible != nil {
		visible = s.caps.Visible()
	}
	ctx := s.rootCtx
	s.mu.Unlock()

	c, err := sharedclient.Dial(ctx, key, identity, visible, sharedclient.Config{
		Sink: s.sink().With("mode", "shared"),
	}, sharedclient.Hooks{
		OnConnected:    s.onConnected,
		OnDisconnected: s.onDisconnected,
		OnError:        s.onError,
		OnAuthConflict: s.onAuthConflict,
	})
	if err != nil {
		return &errs.TransportError{Op: "shared-attach", Err: err}
	}
	s.mu.Lock()
	s.shared = c
	s.mu.Unlock()
	return nil
}

// attachDirect stands up a streamclient.Client for direct or
// visibility-scoped mode (the two differ only in whether the Session
// forwards SetVisible-style transitions, which in Go has no ambient
// source and so is left to the caller via IsConnected/hooks).
func (s *Session) attachDirect(visibilityScoped bool) {
	s.mu.Lock()
	identity := s.identity
	cfg := s.cfg
	s.mu.Unlock()

	url, err := identity.StreamURL()
	if err != nil {
		s.sink().Error("build stream url", "error", err)
		url = cfg.URL
	}

	c := streamclient.New(streamclient.Config{
		URL:                   url,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		HeartbeatMessage:      cfg.HeartbeatMessage,
		ReconnectDelay:        cfg.ReconnectDelay,
		ReconnectDelayMax:     cfg.ReconnectDelayMax,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
		AutoReconnect:         &cfg.AutoReconnect,
		EnableNetworkListener: cfg.EnableNetworkListener,
		Sink:                  s.sink().With("mode", map[bool]string{true: "visibility", false: "direct"}[visibilityScoped]),
	}, streamclient.Hooks{
		OnOpen:  s.onConnected,
		OnClose: func(transport.CloseInfo) { s.onDisconnected() },
		OnError: s.onError,
	})

	s.mu.Lock()
	s.direct = c
	s.mu.Unlock()
	c.Connect(url)
}

func (s *Session) onConnected() {
	s.mu.Lock()
	hook := s.hooks.OnConnected
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *Session) onDisconnected() {
	s.mu.Lock()
	hook := s.hooks.OnDisconnected
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (s *Session) onError(err error) {
	s.mu.Lock()
	hook := s.hooks.OnError
	s.mu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func (s *Session) onAuthConflict(currentUserID, newUserID, explanation string) {
	s.mu.Lock()
	hook := s.hooks.OnAuthConflict
	s.mu.Unlock()
	if hook != nil {
		hook(currentUserID, newUserID, explanation)
	}
}

// Stop tears down the current connection — this tab only, in shared mode
// (spec §4.4).
func (s *Session) Stop() {
	s.mu.Lock()
	shared, direct, cancel := s.shared, s.direct, s.cancel
	s.shared, s.direct = nil, nil
	s.started = false
	s.componentIDs = make(map[string]string)
	s.mu.Unlock()

	if shared != nil {
		shared.Stop()
	}
	if direct != nil {
		direct.Shutdown()
	}
	if cancel != nil {
		cancel()
	}
}
