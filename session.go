package main

import (
	"sync"
	"sync/atomic"
	"time"

	"voxd/log"
)

// SessionState is the controller's phase. Exactly one session exists per
// process.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateListening
	StateFlushing
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFlushing:
		return "flushing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionMode distinguishes a bounded quick-record from open-ended dictation.
type SessionMode int

const (
	// ModeUnbounded runs until an explicit Stop.
	ModeUnbounded SessionMode = iota
	// ModeBounded auto-stops after a fixed wall-clock duration.
	ModeBounded
)

// SessionController owns the session state machine. Transitions are
// mutex-guarded; the current state is readable lock-free from any task.
type SessionController struct {
	mu     sync.Mutex
	state  atomic.Int32
	mode   SessionMode
	status *StatusPublisher

	startedAt time.Time
	segments  int
}

func NewSessionController(status *StatusPublisher) *SessionController {
	return &SessionController{status: status}
}

func (c *SessionController) State() SessionState {
	return SessionState(c.state.Load())
}

// Active reports whether audio is currently being consumed.
func (c *SessionController) Active() bool {
	s := c.State()
	return s == StateListening || s == StateFlushing
}

func (c *SessionController) Mode() SessionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *SessionController) set(to SessionState) {
	from := SessionState(c.state.Swap(int32(to)))
	if from != to {
		log.StateChange(from.String(), to.String())
		c.status.SetState(to)
	}
}

// Start moves Idle to Listening. Returns false without side effects when a
// session is already running or the controller is mid-error-cleanup.
func (c *SessionController) Start(mode SessionMode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateIdle {
		return false
	}
	c.mode = mode
	c.startedAt = time.Now()
	c.segments = 0
	c.set(StateListening)
	return true
}

// Stop moves any state to Idle. Calling Stop on an Idle controller is a
// no-op that still reports success.
func (c *SessionController) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateIdle {
		return true
	}
	log.SessionEnd(c.segments)
	c.set(StateIdle)
	return true
}

// Fail records an unrecoverable failure, then completes cleanup back to
// Idle. The cause reaches the UI through the status publisher.
func (c *SessionController) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log.Errorf("session error: %v", err)
	c.status.SetError(err)
	c.set(StateError)
	c.set(StateIdle)
}

// BeginFlush marks the synchronous segment handoff. Only valid while
// Listening; returns false otherwise (a Stop may have raced the flush).
func (c *SessionController) BeginFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateListening {
		return false
	}
	c.segments++
	c.set(StateFlushing)
	return true
}

// EndFlush returns to Listening after the segment is handed off.
func (c *SessionController) EndFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateFlushing {
		c.set(StateListening)
	}
}

// Deadline returns the auto-stop time for bounded sessions and false for
// unbounded ones.
func (c *SessionController) Deadline(boundedFor time.Duration) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeBounded {
		return time.Time{}, false
	}
	return c.startedAt.Add(boundedFor), true
}

// SegmentCount returns flushed segments in the current session.
func (c *SessionController) SegmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segments
}
