package main

import (
	"sync"
	"time"

	"voxd/inject"
)

// Status is the externally visible snapshot of the pipeline: current state,
// last transcription, last injection outcome. The UI layer only reads it.
type Status struct {
	State    SessionState
	Err      error
	Device   string
	Segments int

	LastText        string
	LastTextAt      time.Time
	LastInjection   *inject.Result
	DroppedSegments int
}

// StatusPublisher holds one current Status and fans updates out to
// subscribers without ever blocking a pipeline task: a slow subscriber
// misses intermediate snapshots instead of stalling capture.
type StatusPublisher struct {
	mu   sync.Mutex
	cur  Status
	subs []chan Status
}

func NewStatusPublisher() *StatusPublisher {
	return &StatusPublisher{}
}

func (p *StatusPublisher) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Subscribe returns a channel receiving status snapshots. The channel is
// buffered; snapshots are dropped, not queued, when the subscriber lags.
func (p *StatusPublisher) Subscribe() <-chan Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Status, 4)
	p.subs = append(p.subs, ch)
	return ch
}

func (p *StatusPublisher) publish(mutate func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mutate(&p.cur)
	for _, ch := range p.subs {
		select {
		case ch <- p.cur:
		default:
		}
	}
}

func (p *StatusPublisher) SetState(s SessionState) {
	p.publish(func(st *Status) {
		st.State = s
		if s != StateError {
			st.Err = nil
		}
	})
}

func (p *StatusPublisher) SetError(err error) {
	p.publish(func(st *Status) { st.Err = err })
}

func (p *StatusPublisher) SetDevice(name string) {
	p.publish(func(st *Status) { st.Device = name })
}

func (p *StatusPublisher) SetTranscription(text string) {
	p.publish(func(st *Status) {
		st.LastText = text
		st.LastTextAt = time.Now()
		st.Segments++
	})
}

func (p *StatusPublisher) SetInjection(res inject.Result) {
	p.publish(func(st *Status) { st.LastInjection = &res })
}

func (p *StatusPublisher) AddDropped() {
	p.publish(func(st *Status) { st.DroppedSegments++ })
}
