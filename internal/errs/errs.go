// Package errs defines this module's error kinds. Sentinel errors are
// checked with errors.Is; the typed errors carry the extra fields each kind
// needs. Pattern follows auth/client.go's sentinel-errors-plus-
// context-carrying-wraps style (see auth/auth_test.go).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrSendUnavailable: send called while the stream is not OPEN.
	ErrSendUnavailable = errors.New("streamhub: send unavailable, stream not open")

	// ErrInvalidSubscription: subscription entry missing a type or callback.
	ErrInvalidSubscription = errors.New("streamhub: invalid subscription")

	// ErrConfigMissing: Start called without a URL or without a user ID. An
	// empty credential is accepted.
	ErrConfigMissing = errors.New("streamhub: configuration missing required fields")

	// ErrHostUnavailable: the shared host could not be claimed or dialed.
	ErrHostUnavailable = errors.New("streamhub: shared host unavailable")

	// ErrReconnectExhausted: the reconnect ceiling was reached.
	ErrReconnectExhausted = errors.New("streamhub: reconnect attempts exhausted")

	// ErrTabNotFound: the host has no record of this tab.
	ErrTabNotFound = errors.New("streamhub: tab not found")
)

// ParseError wraps a malformed inbound frame (spec §7 ParseError).
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("streamhub: parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError wraps an underlying stream transport failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("streamhub: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IdentityConflict: the host observed a TAB_INIT whose identity differs
// from the current one.
type IdentityConflict struct {
	CurrentUserID string
	NewUserID     string
}

func (e *IdentityConflict) Error() string {
	return fmt.Sprintf("streamhub: identity conflict: current user %q, new user %q", e.CurrentUserID, e.NewUserID)
}

// FastCloseBurst: three consecutive fast-clean-closes tripped the breaker.
type FastCloseBurst struct {
	SuspendedUntilUnixMilli int64
}

func (e *FastCloseBurst) Error() string {
	return fmt.Sprintf("streamhub: fast-close burst detected, reconnect suspended until %d", e.SuspendedUntilUnixMilli)
}
