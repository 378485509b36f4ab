package hotkey

import (
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// StartEvent indicates a new recording should start.
type StartEvent struct {
	Mode Mode
}

// Hybrid layers tap-to-toggle and hold-to-talk onto one key combination.
// A press always starts recording immediately; whether release stops it
// depends on how long the key was held.
type Hybrid struct {
	startCh chan StartEvent
	stopCh  chan struct{}
	done    chan struct{}
	toggle  atomic.Bool
}

// NewHybrid builds a Hybrid controller on top of an existing Hotkey.
// longPress separates a hold (push-to-talk) from a tap (toggle).
func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		startCh: make(chan StartEvent, 1),
		stopCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go h.run(hk, longPress)
	return h
}

// Start signals when to begin recording.
func (h *Hybrid) Start() <-chan StartEvent { return h.startCh }

// StopChan signals when to stop recording, for both modes.
func (h *Hybrid) StopChan() <-chan struct{} { return h.stopCh }

// IsToggle reports whether the current or last recording ran in toggle mode.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

// Close stops the state machine goroutine.
func (h *Hybrid) Close() { close(h.done) }

func (h *Hybrid) signalStop() {
	select {
	case h.stopCh <- struct{}{}:
	default:
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		// Idle: any press starts recording right away. The mode is only
		// known once the press is classified, so assume toggle and correct
		// below; callers read the mode at stop time.
		select {
		case <-h.done:
			return
		case <-hk.Keydown():
		}
		h.toggle.Store(true)
		h.startCh <- StartEvent{Mode: ModeToggle}

		timer := time.NewTimer(longPress)
		select {
		case <-h.done:
			timer.Stop()
			return
		case <-timer.C:
			// Held past the threshold: push-to-talk, stop on release.
			h.toggle.Store(false)
			select {
			case <-h.done:
				return
			case <-hk.Keyup():
			}
			h.signalStop()
		case <-hk.Keyup():
			// Short tap: recording stays on until the next tap.
			if !timer.Stop() {
				<-timer.C
			}
			select {
			case <-h.done:
				return
			case <-hk.Keydown():
			}
			select {
			case <-h.done:
				return
			case <-hk.Keyup():
			}
			h.signalStop()
		}
	}
}
