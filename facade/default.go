package facade

import "sync"

var (
	defaultOnce    sync.Once
	defaultSession *Session
)

// Default returns the process-wide Session singleton (spec §4.4, §9: "the
// Facade is presented as module-global state... retain the singleton
// form"). Prefer constructing a *Session directly via New in new code;
// Default exists for callers that want the original single-instance feel.
func Default() *Session {
	defaultOnce.Do(func() { defaultSession = New() })
	return defaultSession
}
