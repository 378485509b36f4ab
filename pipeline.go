package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"voxd/audio"
	"voxd/config"
	"voxd/encoder"
	"voxd/engine"
	"voxd/inject"
	"voxd/log"
)

// Pipeline wires the concurrent tasks: capture feeding VAD and the segmenter,
// transcription consuming flushed segments, injection consuming text. The
// capture task never blocks on anything but the device; both hand-off queues
// are bounded and drop their oldest item under backpressure.
type Pipeline struct {
	cfg        *config.Config
	ctrl       *SessionController
	status     *StatusPublisher
	dispatcher *engine.Dispatcher
	cascade    *inject.Cascade
	budget     *MemoryBudget

	audioCtx audio.Context
	device   *audio.DeviceInfo

	frames chan Frame
	segQ   chan *Segment
	textQ  chan string

	startCh chan SessionMode
	stopCh  chan struct{}

	// sessionDone receives one signal per ended session, used by replay mode
	// to exit once the input is fully processed.
	sessionDone chan struct{}
}

func NewPipeline(
	cfg *config.Config,
	audioCtx audio.Context,
	device *audio.DeviceInfo,
	dispatcher *engine.Dispatcher,
	cascade *inject.Cascade,
	ctrl *SessionController,
	status *StatusPublisher,
) *Pipeline {
	depth := cfg.Session.QueueDepth
	if depth < 1 {
		depth = 1
	}
	return &Pipeline{
		cfg:         cfg,
		ctrl:        ctrl,
		status:      status,
		dispatcher:  dispatcher,
		cascade:     cascade,
		budget:      newMemoryBudget(cfg.Session.MemoryCeiling),
		audioCtx:    audioCtx,
		device:      device,
		frames:      make(chan Frame, 64),
		segQ:        make(chan *Segment, depth),
		textQ:       make(chan string, depth),
		startCh:     make(chan SessionMode, 1),
		stopCh:      make(chan struct{}, 1),
		sessionDone: make(chan struct{}, 1),
	}
}

// RequestStart asks the capture task to begin a session. Duplicate requests
// while a session is active are ignored.
func (p *Pipeline) RequestStart(mode SessionMode) {
	select {
	case p.startCh <- mode:
	default:
	}
}

// RequestStop asks the capture task to end the current session.
func (p *Pipeline) RequestStop() {
	select {
	case p.stopCh <- struct{}{}:
	default:
	}
}

// SessionDone signals once per completed session.
func (p *Pipeline) SessionDone() <-chan struct{} { return p.sessionDone }

// Run executes the pipeline tasks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.captureTask(ctx) })
	g.Go(func() error { return p.transcribeTask(ctx) })
	g.Go(func() error { return p.injectTask(ctx) })
	return g.Wait()
}

// audioDoneSource is implemented by replay captures that run out of input.
type audioDoneSource interface {
	AudioDone() <-chan struct{}
}

func (p *Pipeline) captureTask(ctx context.Context) error {
	for {
		var mode SessionMode
		select {
		case <-ctx.Done():
			return nil
		case mode = <-p.startCh:
		}
		if !p.ctrl.Start(mode) {
			continue
		}
		p.runSession(ctx, mode)
		p.ctrl.Stop()
		select {
		case p.sessionDone <- struct{}{}:
		default:
		}
	}
}

// runSession owns the device and the segmenter from start to stop.
func (p *Pipeline) runSession(ctx context.Context, mode SessionMode) {
	// Frames and stop requests left over from a previous session must not
	// leak into this one.
	for drained := false; !drained; {
		select {
		case <-p.frames:
		case <-p.stopCh:
		default:
			drained = true
		}
	}

	capCfg := audio.CaptureConfig{
		SampleRate: p.cfg.Audio.SampleRate,
		Channels:   p.cfg.Audio.Channels,
	}
	capture, err := p.audioCtx.NewCapture(p.device, capCfg)
	if err != nil {
		p.ctrl.Fail(fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err))
		return
	}
	defer capture.Close()

	var seq uint64
	capture.SetCallback(func(data []byte, _ uint32) {
		pcm := make([]byte, len(data))
		copy(pcm, data)
		seq++
		select {
		case p.frames <- Frame{Seq: seq, Time: time.Now(), PCM: pcm}:
		default:
			// Capture must not block; a stalled consumer loses frames.
		}
	})
	defer capture.ClearCallback()

	if err := capture.Start(); err != nil {
		p.ctrl.Fail(fmt.Errorf("%w: %v", audio.ErrStreamInterrupted, err))
		return
	}
	defer capture.Stop()

	if audio.IsBluetooth(capture.DeviceName()) {
		log.Warnf("bluetooth capture device %q, expect reduced quality", capture.DeviceName())
	}
	p.status.SetDevice(capture.DeviceName())
	log.SessionStart("primary", p.dispatcher.Format())
	p.dispatcher.Warm()

	vad := newVAD(p.cfg.VAD, p.cfg.Audio.SampleRate)
	idle := newIdleMonitor(p.cfg.Audio.FrameDuration(), mode == ModeBounded)
	sg := newSegmenter(p.cfg.Segment, p.cfg.Audio.SampleRate, p.budget)
	defer sg.Discard()
	defer vad.Reset()

	var deadline <-chan time.Time
	if at, ok := p.ctrl.Deadline(p.cfg.Session.BoundedDuration()); ok {
		t := time.NewTimer(time.Until(at))
		defer t.Stop()
		deadline = t.C
	}

	var audioDone <-chan struct{}
	if src, ok := capture.(audioDoneSource); ok {
		audioDone = src.AudioDone()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			// Explicit stop discards the partial buffer and cancels
			// anything still queued behind the engine.
			p.drainSegments()
			p.drainTexts()
			return
		case <-deadline:
			p.forceFlush(sg)
			return
		case <-audioDone:
			p.drainFrames(sg, vad, idle)
			p.forceFlush(sg)
			return
		case f := <-p.frames:
			if p.processFrame(sg, vad, idle, f) {
				return
			}
		}
	}
}

// processFrame classifies one frame and feeds the segmenter. It reports true
// when the session should end.
func (p *Pipeline) processFrame(sg *segmenter, vad *vadDetector, idle *idleMonitor, f Frame) bool {
	if p.budget.Exceeded() {
		p.memoryCleanup(sg)
	}
	speech := vad.Speech(f.PCM)
	switch idle.Observe(speech) {
	case IdleWarn:
		log.Warnf("no speech detected for %s, still listening", idleWarnAfter)
	case IdleWarnClear:
		log.Debugf("speech resumed")
	case IdleAutoClose:
		log.Warnf("no speech for %s, closing session", idleCloseAfter)
		p.forceFlush(sg)
		return true
	}
	ev, seg := sg.Push(f, speech)
	switch ev {
	case segFlush:
		p.handoff(seg)
	case segDiscard:
		log.Debugf("segment discarded as noise (floor=%.4f)", vad.NoiseFloor())
	}
	return false
}

// drainFrames consumes frames still buffered when the source reports end of
// audio, so a replayed file is segmented in full.
func (p *Pipeline) drainFrames(sg *segmenter, vad *vadDetector, idle *idleMonitor) {
	for {
		select {
		case f := <-p.frames:
			if p.processFrame(sg, vad, idle, f) {
				return
			}
		default:
			return
		}
	}
}

// handoff moves one finished segment into the transcription queue.
func (p *Pipeline) handoff(seg *Segment) {
	if !p.ctrl.BeginFlush() {
		seg.Release()
		return
	}
	p.enqueueSegment(seg)
	p.ctrl.EndFlush()
}

func (p *Pipeline) forceFlush(sg *segmenter) {
	if seg := sg.ForceFlush(); seg != nil {
		p.handoff(seg)
	}
}

// enqueueSegment never blocks: when the queue is full the oldest pending
// segment is dropped with a backpressure warning.
func (p *Pipeline) enqueueSegment(seg *Segment) {
	for {
		select {
		case p.segQ <- seg:
			return
		default:
		}
		select {
		case old := <-p.segQ:
			old.Release()
			p.status.AddDropped()
			log.Warnf("backpressure: dropped oldest pending segment (%.1fs)", old.Duration().Seconds())
		default:
		}
	}
}

func (p *Pipeline) enqueueText(text string) {
	for {
		select {
		case p.textQ <- text:
			return
		default:
		}
		select {
		case old := <-p.textQ:
			log.Warnf("backpressure: dropped pending text (%d chars)", len(old))
		default:
		}
	}
}

// memoryCleanup runs when held bytes exceed the ceiling: drop the oldest
// queued segment first, then the current partial buffer. Capture continues
// unblocked throughout.
func (p *Pipeline) memoryCleanup(sg *segmenter) {
	log.Warnf("memory budget exceeded (%d bytes), forcing cleanup", p.budget.Used())
	select {
	case old := <-p.segQ:
		old.Release()
		p.status.AddDropped()
	default:
	}
	if p.budget.Exceeded() {
		sg.Discard()
	}
	p.dispatcher.Reset()
}

func (p *Pipeline) transcribeTask(ctx context.Context) error {
	for {
		var seg *Segment
		select {
		case <-ctx.Done():
			p.drainSegments()
			return nil
		case seg = <-p.segQ:
		}

		start := time.Now()
		data, enc, err := encodeSegment(seg, p.dispatcher.Format())
		dur := seg.Duration()
		rawBytes := len(seg.PCM)
		seg.Release()
		if err != nil {
			log.Errorf("segment encode failed: %v", err)
			continue
		}

		text, res, err := p.dispatcher.Transcribe(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.ctrl.Fail(err)
			// The capture loop must not keep the device open for a
			// session that can no longer transcribe.
			p.RequestStop()
			continue
		}
		if res != nil {
			p.logSegment(dur, rawBytes, len(data), enc, start, res)
		}
		if text == "" {
			continue
		}
		log.TranscriptionText(text)
		p.status.SetTranscription(text)
		p.enqueueText(text)
	}
}

func (p *Pipeline) logSegment(dur time.Duration, rawBytes, uploadBytes int, enc encoder.Encoder, start time.Time, res *engine.Result) {
	m := log.SegmentMetrics{
		AudioLengthS:     dur.Seconds(),
		RawSizeKB:        float64(rawBytes) / 1024,
		UploadSizeKB:     float64(uploadBytes) / 1024,
		EncodeTimeMs:     float64(enc.EncodeTime().Milliseconds()),
		TotalTimeMs:      float64(time.Since(start).Milliseconds()),
		Confidence:       res.AvgLogProb,
		NoSpeechProb:     res.NoSpeechProb,
		CompressionRatio: res.CompressionRatio,
	}
	if rawBytes > 0 {
		m.CompressionPct = (1 - float64(uploadBytes)/float64(rawBytes)) * 100
	}
	connReused := false
	if res.Metrics != nil {
		m.DNSTimeMs = float64(res.Metrics.DNS.Milliseconds())
		m.TLSTimeMs = float64(res.Metrics.TLS.Milliseconds())
		m.TTFBMs = float64(res.Metrics.TTFB.Milliseconds())
		connReused = res.Metrics.ConnReused
	}
	log.Segment(m, p.dispatcher.Format(), "primary", connReused)
}

func (p *Pipeline) drainSegments() {
	for {
		select {
		case seg := <-p.segQ:
			seg.Release()
		default:
			return
		}
	}
}

func (p *Pipeline) drainTexts() {
	for {
		select {
		case <-p.textQ:
		default:
			return
		}
	}
}

func (p *Pipeline) injectTask(ctx context.Context) error {
	for {
		var text string
		select {
		case <-ctx.Done():
			return nil
		case text = <-p.textQ:
		}

		res, err := p.cascade.Run(ctx, text)
		p.status.SetInjection(res)
		if err != nil {
			// Reachable only with a cascade missing its terminal strategy.
			log.Errorf("injection failed for %d chars: %v", len(text), err)
		}
	}
}

// encodeSegment converts raw PCM16 into the configured upload format.
func encodeSegment(seg *Segment, format string) ([]byte, encoder.Encoder, error) {
	enc, err := encoder.New(format)
	if err != nil {
		return nil, nil, err
	}

	samples := make([]int16, len(seg.PCM)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(seg.PCM[i*2:]))
	}
	for off := 0; off < len(samples); off += encoder.BlockSize {
		end := off + encoder.BlockSize
		if end > len(samples) {
			end = len(samples)
		}
		t := time.Now()
		if err := enc.EncodeBlock(samples[off:end]); err != nil {
			return nil, nil, err
		}
		enc.AddEncodeTime(time.Since(t))
	}
	if err := enc.Close(); err != nil {
		return nil, nil, err
	}
	return enc.Bytes(), enc, nil
}
