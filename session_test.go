package main

import (
	"errors"
	"testing"
	"time"
)

func newTestController() (*SessionController, *StatusPublisher) {
	status := NewStatusPublisher()
	return NewSessionController(status), status
}

func TestSessionStartStop(t *testing.T) {
	ctrl, _ := newTestController()

	if ctrl.State() != StateIdle {
		t.Fatalf("initial state = %s", ctrl.State())
	}
	if !ctrl.Start(ModeUnbounded) {
		t.Fatal("Start refused from Idle")
	}
	if ctrl.State() != StateListening {
		t.Errorf("state after Start = %s", ctrl.State())
	}
	if ctrl.Start(ModeUnbounded) {
		t.Error("Start accepted while already listening")
	}
	if !ctrl.Stop() {
		t.Error("Stop failed from Listening")
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state after Stop = %s", ctrl.State())
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	ctrl, _ := newTestController()
	if !ctrl.Stop() {
		t.Error("Stop on Idle should be a successful no-op")
	}
	if !ctrl.Stop() {
		t.Error("repeated Stop should stay successful")
	}
	if ctrl.State() != StateIdle {
		t.Errorf("state = %s", ctrl.State())
	}
}

func TestSessionFlushTransitions(t *testing.T) {
	ctrl, _ := newTestController()

	if ctrl.BeginFlush() {
		t.Error("BeginFlush accepted outside a session")
	}
	ctrl.Start(ModeUnbounded)
	if !ctrl.BeginFlush() {
		t.Fatal("BeginFlush refused while listening")
	}
	if ctrl.State() != StateFlushing {
		t.Errorf("state = %s, want Flushing", ctrl.State())
	}
	ctrl.EndFlush()
	if ctrl.State() != StateListening {
		t.Errorf("state after EndFlush = %s, want Listening", ctrl.State())
	}
	if ctrl.SegmentCount() != 1 {
		t.Errorf("segment count = %d", ctrl.SegmentCount())
	}
}

func TestSessionFailPublishesError(t *testing.T) {
	ctrl, status := newTestController()
	ctrl.Start(ModeUnbounded)

	boom := errors.New("device vanished")
	ctrl.Fail(boom)
	if ctrl.State() != StateIdle {
		t.Errorf("state after Fail = %s, want Idle", ctrl.State())
	}
	if got := status.Snapshot().Err; !errors.Is(got, boom) {
		t.Errorf("published error = %v", got)
	}
}

func TestSessionDeadline(t *testing.T) {
	ctrl, _ := newTestController()

	if _, ok := ctrl.Deadline(time.Minute); ok {
		t.Error("idle controller reported a deadline")
	}
	ctrl.Start(ModeBounded)
	at, ok := ctrl.Deadline(time.Minute)
	if !ok {
		t.Fatal("bounded session has no deadline")
	}
	if until := time.Until(at); until <= 0 || until > time.Minute {
		t.Errorf("deadline %s away", until)
	}
	ctrl.Stop()

	ctrl.Start(ModeUnbounded)
	if _, ok := ctrl.Deadline(time.Minute); ok {
		t.Error("unbounded session reported a deadline")
	}
}
