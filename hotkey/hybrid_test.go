package hotkey

import (
	"testing"
	"time"
)

func waitStart(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.Start():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start")
	}
}

func waitStop(t *testing.T, hy *Hybrid) {
	t.Helper()
	select {
	case <-hy.StopChan():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop")
	}
}

func TestHybridLongPressIsPTT(t *testing.T) {
	fk := NewFake()
	threshold := 50 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	fk.SimKeydown()
	waitStart(t, hy)

	time.Sleep(threshold + 20*time.Millisecond)
	if hy.IsToggle() {
		t.Error("long press should be classified as push-to-talk")
	}
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridTapTogglesOn(t *testing.T) {
	fk := NewFake()
	threshold := 100 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	// Quick tap: start, release before threshold.
	fk.SimKeydown()
	waitStart(t, hy)
	fk.SimKeyup()

	time.Sleep(threshold + 20*time.Millisecond)
	if !hy.IsToggle() {
		t.Error("short tap should be classified as toggle")
	}

	// No stop yet.
	select {
	case <-hy.StopChan():
		t.Fatal("toggle recording stopped without a second tap")
	case <-time.After(50 * time.Millisecond):
	}

	// Second tap stops.
	fk.SimKeydown()
	fk.SimKeyup()
	waitStop(t, hy)
}

func TestHybridRestartsAfterStop(t *testing.T) {
	fk := NewFake()
	threshold := 40 * time.Millisecond
	hy := NewHybrid(fk, threshold)
	defer hy.Close()

	for i := 0; i < 2; i++ {
		fk.SimKeydown()
		waitStart(t, hy)
		time.Sleep(threshold + 20*time.Millisecond)
		fk.SimKeyup()
		waitStop(t, hy)
	}
}
