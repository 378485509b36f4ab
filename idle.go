package main

import "time"

const (
	idleWarnAfter  = 10 * time.Second
	idleCloseAfter = 45 * time.Second
	speechMinRatio = 0.10
	speechClearRatio = 0.25 // higher threshold to clear a warning (hysteresis)
)

type IdleEvent int

const (
	IdleNone      IdleEvent = iota
	IdleWarn                // no voice detected for the warn window
	IdleWarnClear           // speech resumed after a warning
	IdleAutoClose           // unbounded session with no voice for the close window
)

// idleMonitor watches per-frame VAD decisions and flags sessions the user
// appears to have walked away from. Auto-close only fires for unbounded
// sessions; bounded ones already carry a deadline.
type idleMonitor struct {
	warnAt   int
	windowSz int
	bounded  bool

	frames      int
	window      []bool
	speechCount int
	warned      bool
}

func newIdleMonitor(frameDur time.Duration, bounded bool) *idleMonitor {
	warnAt := int(idleWarnAfter / frameDur)
	windowSz := int(idleCloseAfter / frameDur)
	if warnAt < 1 {
		warnAt = 1
	}
	if windowSz < warnAt {
		windowSz = warnAt
	}
	return &idleMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		bounded:  bounded,
		window:   make([]bool, windowSz),
	}
}

func (m *idleMonitor) recentRatio(n int) float64 {
	if m.frames < n {
		n = m.frames
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.frames-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Observe records one frame's speech decision and returns the event, if any,
// it triggered.
func (m *idleMonitor) Observe(speech bool) IdleEvent {
	idx := m.frames % m.windowSz
	if m.frames >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = speech
	if speech {
		m.speechCount++
	}
	m.frames++

	r := m.recentRatio(m.warnAt)

	if m.frames >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		return IdleWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return IdleWarnClear
	}

	if m.bounded {
		return IdleNone
	}
	if m.frames >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return IdleAutoClose
	}
	return IdleNone
}
