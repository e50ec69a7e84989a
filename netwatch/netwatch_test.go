package netwatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDisabledNeverEmits(t *testing.T) {
	w := Disabled()
	select {
	case ev, ok := <-w.Events():
		t.Fatalf("Disabled() emitted %v (ok=%v), want nothing", ev, ok)
	case <-time.After(20 * time.Millisecond):
	}
	w.Stop() // must not panic
}

func TestNewPollingEmitsOnTransition(t *testing.T) {
	var online atomic.Bool
	online.Store(true)
	probe := func(context.Context) bool { return online.Load() }

	w := NewPolling(probe, 5*time.Millisecond)
	defer w.Stop()

	online.Store(false)
	select {
	case ev := <-w.Events():
		if ev != EventOffline {
			t.Errorf("first transition = %v, want EventOffline", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for offline transition")
	}

	online.Store(true)
	select {
	case ev := <-w.Events():
		if ev != EventOnline {
			t.Errorf("second transition = %v, want EventOnline", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for online transition")
	}
}

func TestNewPollingStopClosesChannel(t *testing.T) {
	w := NewPolling(func(context.Context) bool { return true }, 5*time.Millisecond)
	w.Stop()
	_, ok := <-w.Events()
	if ok {
		t.Error("Events() channel still open after Stop")
	}
}
