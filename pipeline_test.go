package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voxd/audio"
	"voxd/config"
	"voxd/engine"
	"voxd/inject"
	"voxd/windowctx"
)

// sinkStrategy records injected text instead of touching a real window.
type sinkStrategy struct {
	mu    sync.Mutex
	texts []string
}

func (s *sinkStrategy) Name() string                  { return "sink" }
func (s *sinkStrategy) Usable(windowctx.Context) bool { return true }
func (s *sinkStrategy) IsFallback() bool              { return false }
func (s *sinkStrategy) Inject(_ context.Context, text string, _ windowctx.Context) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	return nil
}

func (s *sinkStrategy) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// blockingEngine stalls every request until released.
type blockingEngine struct {
	release chan struct{}
}

func (b *blockingEngine) Name() string { return "blocking" }

func (b *blockingEngine) Transcribe(ctx context.Context, _ engine.Request) (*engine.Result, error) {
	select {
	case <-b.release:
		return &engine.Result{Text: "late"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// gatedEngine stalls its first request until released and answers the rest
// immediately.
type gatedEngine struct {
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedEngine) Name() string { return "gated" }

func (g *gatedEngine) Transcribe(ctx context.Context, _ engine.Request) (*engine.Result, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &engine.Result{Text: "late"}, nil
}

func (g *gatedEngine) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// testConfig shrinks the timing knobs so realtime replay tests stay fast.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Segment.MinDurationS = 0.2
	cfg.Segment.SilenceTimeoutS = 0.25
	cfg.Segment.MaxDurationS = 2
	cfg.VAD.ModelMode = -1
	return cfg
}

type testPipeline struct {
	pipe   *Pipeline
	ctrl   *SessionController
	status *StatusPublisher
	sink   *sinkStrategy
	cancel context.CancelFunc
	done   chan struct{}
}

func startPipeline(t *testing.T, cfg *config.Config, pcm []byte, eng engine.Engine) *testPipeline {
	t.Helper()

	status := NewStatusPublisher()
	ctrl := NewSessionController(status)
	sink := &sinkStrategy{}
	dispatcher := engine.NewDispatcherWith(eng, nil, cfg.Engine)
	cascade := inject.New(
		func(context.Context) windowctx.Context { return windowctx.Context{} },
		inject.Entry{Strategy: sink, Timeout: time.Second},
	)
	pipe := NewPipeline(cfg, audio.NewFakePCM(pcm, true), nil, dispatcher, cascade, ctrl, status)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testPipeline{pipe: pipe, ctrl: ctrl, status: status, sink: sink, cancel: cancel, done: done}
}

func (tp *testPipeline) waitSessionDone(t *testing.T) {
	t.Helper()
	select {
	case <-tp.pipe.SessionDone():
	case <-time.After(15 * time.Second):
		t.Fatal("session never completed")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for " + what)
}

func TestPipelineEndToEnd(t *testing.T) {
	pcm := append(genTone(440, 600), genSilence(500)...)
	tp := startPipeline(t, testConfig(), pcm, engine.NewFake("hello world", nil))

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	waitFor(t, "injection", func() bool { return len(tp.sink.Texts()) == 1 })
	if got := tp.sink.Texts()[0]; got != "hello world" {
		t.Errorf("injected %q", got)
	}
	if tp.ctrl.State() != StateIdle {
		t.Errorf("state after session = %s", tp.ctrl.State())
	}
	s := tp.status.Snapshot()
	if s.Segments != 1 || s.LastText != "hello world" {
		t.Errorf("status = %+v", s)
	}
	waitFor(t, "injection status", func() bool { return tp.status.Snapshot().LastInjection != nil })
	if inj := tp.status.Snapshot().LastInjection; !inj.Delivered || inj.Method != "sink" {
		t.Errorf("injection result = %+v", inj)
	}
}

func TestPipelineShortNoiseDropped(t *testing.T) {
	fake := engine.NewFake("should never be used", nil)
	pcm := append(genTone(440, 128), genSilence(500)...)
	tp := startPipeline(t, testConfig(), pcm, fake)

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	if fake.Calls != 0 {
		t.Errorf("engine called %d times for sub-minimum noise", fake.Calls)
	}
	if texts := tp.sink.Texts(); len(texts) != 0 {
		t.Errorf("injected %q", texts)
	}
}

func TestPipelineEmptyTranscriptionSkipsInjection(t *testing.T) {
	fake := engine.NewFake("", nil)
	pcm := append(genTone(440, 600), genSilence(500)...)
	tp := startPipeline(t, testConfig(), pcm, fake)

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	waitFor(t, "engine call", func() bool { return fake.Calls >= 1 })
	time.Sleep(50 * time.Millisecond)
	if texts := tp.sink.Texts(); len(texts) != 0 {
		t.Errorf("empty transcription was injected: %q", texts)
	}
	if tp.ctrl.State() != StateIdle {
		t.Errorf("state = %s", tp.ctrl.State())
	}
}

func TestPipelineRejectedSegmentDroppedSilently(t *testing.T) {
	fake := engine.NewFake("", engine.ErrRejected)
	pcm := append(genTone(440, 600), genSilence(500)...)
	tp := startPipeline(t, testConfig(), pcm, fake)

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	waitFor(t, "engine call", func() bool { return fake.Calls >= 1 })
	if texts := tp.sink.Texts(); len(texts) != 0 {
		t.Errorf("rejected segment was injected: %q", texts)
	}
	if s := tp.status.Snapshot(); s.Err != nil {
		t.Errorf("rejection surfaced as error: %v", s.Err)
	}
}

func TestPipelineStopDiscardsPartial(t *testing.T) {
	fake := engine.NewFake("should never be used", nil)
	tp := startPipeline(t, testConfig(), genTone(440, 1500), fake)

	tp.pipe.RequestStart(ModeUnbounded)
	time.Sleep(300 * time.Millisecond)
	tp.pipe.RequestStop()
	tp.waitSessionDone(t)

	if fake.Calls != 0 {
		t.Errorf("engine called %d times after explicit stop", fake.Calls)
	}
	if tp.ctrl.State() != StateIdle {
		t.Errorf("state = %s", tp.ctrl.State())
	}
}

func TestPipelineEngineFailureClosesSession(t *testing.T) {
	cfg := testConfig()
	cfg.Segment.MaxDurationS = 0.5
	cfg.Segment.SilenceTimeoutS = 10
	fake := engine.NewFake("", engine.ErrUnavailable)
	tp := startPipeline(t, cfg, genTone(440, 4000), fake)

	start := time.Now()
	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("session stayed open %s after the engine failed", elapsed)
	}
	if tp.ctrl.State() != StateIdle {
		t.Errorf("state = %s", tp.ctrl.State())
	}
	if err := tp.status.Snapshot().Err; !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("published error = %v", err)
	}
}

func TestPipelineStopCancelsQueued(t *testing.T) {
	cfg := testConfig()
	cfg.Segment.MinDurationS = 0.1
	cfg.Segment.MaxDurationS = 0.3
	cfg.Segment.SilenceTimeoutS = 10

	eng := &gatedEngine{release: make(chan struct{})}
	tp := startPipeline(t, cfg, genTone(440, 2500), eng)

	tp.pipe.RequestStart(ModeUnbounded)
	waitFor(t, "first engine call", func() bool { return eng.Calls() >= 1 })
	// Let further segments queue up behind the stalled call.
	time.Sleep(700 * time.Millisecond)
	tp.pipe.RequestStop()
	tp.waitSessionDone(t)
	close(eng.release)

	time.Sleep(100 * time.Millisecond)
	if got := eng.Calls(); got != 1 {
		t.Errorf("queued segments transcribed after stop: %d calls", got)
	}
	if texts := tp.sink.Texts(); len(texts) > 1 {
		t.Errorf("stale injections after stop: %q", texts)
	}
}

func TestPipelineStaleStopIgnored(t *testing.T) {
	pcm := append(genTone(440, 600), genSilence(500)...)
	tp := startPipeline(t, testConfig(), pcm, engine.NewFake("kept", nil))

	// A stop requested with no session running must not cancel the next one.
	tp.pipe.RequestStop()
	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	waitFor(t, "injection", func() bool { return len(tp.sink.Texts()) == 1 })
}

func TestPipelineStaleFramesDiscarded(t *testing.T) {
	fake := engine.NewFake("should never be used", nil)
	tp := startPipeline(t, testConfig(), genSilence(600), fake)

	stale := genTone(440, 1280)
	fb := tp.pipe.cfg.Audio.FrameBytes()
	for off := 0; off+fb <= len(stale); off += fb {
		tp.pipe.frames <- Frame{Seq: uint64(off / fb), Time: time.Now(), PCM: stale[off : off+fb]}
	}

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)

	if fake.Calls != 0 {
		t.Errorf("stale frames transcribed: %d engine calls", fake.Calls)
	}
}

func TestPipelineBackpressureDropsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.Segment.MinDurationS = 0.1
	cfg.Segment.MaxDurationS = 0.3
	cfg.Segment.SilenceTimeoutS = 10
	cfg.Session.QueueDepth = 1

	eng := &blockingEngine{release: make(chan struct{})}
	tp := startPipeline(t, cfg, genTone(440, 2500), eng)

	tp.pipe.RequestStart(ModeUnbounded)
	tp.waitSessionDone(t)
	close(eng.release)

	if dropped := tp.status.Snapshot().DroppedSegments; dropped == 0 {
		t.Error("no segments dropped despite a stalled engine and a full queue")
	}
}

func TestMemoryCleanupDropsQueuedFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MemoryCeiling = 100

	status := NewStatusPublisher()
	ctrl := NewSessionController(status)
	pipe := NewPipeline(cfg, audio.NewFakePCM(nil, true), nil,
		engine.NewDispatcherWith(engine.NewFake("", nil), nil, cfg.Engine),
		inject.New(nil), ctrl, status)

	queued := &Segment{PCM: make([]byte, 200), SampleRate: 16000, budget: pipe.budget}
	pipe.budget.add(200)
	pipe.enqueueSegment(queued)

	sg := newSegmenter(cfg.Segment, 16000, pipe.budget)
	sg.pcm = make([]byte, 80)
	pipe.budget.add(80)

	pipe.memoryCleanup(sg)

	if got := pipe.budget.Used(); got != 80 {
		t.Errorf("after dropping the queued segment budget = %d, want 80", got)
	}
	if len(sg.pcm) == 0 {
		t.Error("partial buffer discarded while under the ceiling")
	}
	if tp := status.Snapshot(); tp.DroppedSegments != 1 {
		t.Errorf("dropped = %d, want 1", tp.DroppedSegments)
	}

	pipe.budget.add(100)
	pipe.memoryCleanup(sg)
	if len(sg.pcm) != 0 {
		t.Error("partial buffer kept while still over the ceiling")
	}
}
