package main

import (
	"sync"
	"sync/atomic"
	"time"

	"voxd/config"
	"voxd/log"
)

// Frame is one capture block of little-endian PCM16 mono samples. Frames are
// immutable once produced; Seq increases monotonically for the life of a
// session.
type Frame struct {
	Seq  uint64
	Time time.Time
	PCM  []byte
}

// MemoryBudget tracks bytes held across the segment buffer and the pending
// transcription queue. It is the only mutable state shared by the pipeline
// tasks, so it stays a plain atomic counter.
type MemoryBudget struct {
	used    atomic.Int64
	ceiling int64
}

func newMemoryBudget(ceiling int64) *MemoryBudget {
	return &MemoryBudget{ceiling: ceiling}
}

func (b *MemoryBudget) add(n int)     { b.used.Add(int64(n)) }
func (b *MemoryBudget) release(n int) { b.used.Add(-int64(n)) }

func (b *MemoryBudget) Used() int64 { return b.used.Load() }

// Exceeded reports whether held bytes are over the configured ceiling.
func (b *MemoryBudget) Exceeded() bool {
	return b.ceiling > 0 && b.used.Load() > b.ceiling
}

// Segment is a finished span of speech audio. It owns its memory exclusively;
// the budget bytes it accounts for are returned by Release exactly once.
type Segment struct {
	PCM        []byte
	Frames     int
	Start      time.Time
	End        time.Time
	SampleRate uint32

	budget      *MemoryBudget
	releaseOnce sync.Once
}

func (s *Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	samples := len(s.PCM) / 2
	return time.Duration(float64(samples) / float64(s.SampleRate) * float64(time.Second))
}

// Release returns the segment's bytes to the memory budget. Safe to call
// more than once.
func (s *Segment) Release() {
	s.releaseOnce.Do(func() {
		if s.budget != nil {
			s.budget.release(len(s.PCM))
		}
	})
}

type segEvent int

const (
	segNone segEvent = iota
	segFlush
	segDiscard
)

// trailing silence kept on a flushed segment so the engine hears a natural
// utterance boundary.
const silenceHangover = 250 * time.Millisecond

// segmenter accumulates frames between speech start and speech end and
// decides when the accumulation becomes a Segment. It is owned exclusively by
// the capture task; no locking.
type segmenter struct {
	cfg        config.SegmentConfig
	sampleRate uint32
	budget     *MemoryBudget

	pcm        []byte
	frames     int
	start, end time.Time
	speechSeen bool
	silence    time.Duration
}

func newSegmenter(cfg config.SegmentConfig, sampleRate uint32, budget *MemoryBudget) *segmenter {
	return &segmenter{cfg: cfg, sampleRate: sampleRate, budget: budget}
}

func (sg *segmenter) buffered() time.Duration {
	if sg.sampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(sg.pcm)/2) / float64(sg.sampleRate) * float64(time.Second))
}

func (sg *segmenter) frameDuration(f Frame) time.Duration {
	if sg.sampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(f.PCM)/2) / float64(sg.sampleRate) * float64(time.Second))
}

// Push feeds one classified frame. The returned segment is non-nil only for
// segFlush.
func (sg *segmenter) Push(f Frame, speech bool) (segEvent, *Segment) {
	if !sg.speechSeen && !speech {
		// Leading silence never starts a segment.
		return segNone, nil
	}

	if sg.frames == 0 {
		sg.start = f.Time
	}
	sg.pcm = append(sg.pcm, f.PCM...)
	sg.budget.add(len(f.PCM))
	sg.frames++
	sg.end = f.Time

	if speech {
		sg.speechSeen = true
		sg.silence = 0
	} else {
		sg.silence += sg.frameDuration(f)
	}

	// Hard ceiling: flush no more than one frame past MaxDuration.
	if sg.buffered() >= sg.cfg.MaxDuration() {
		return segFlush, sg.flush()
	}

	if sg.silence >= sg.cfg.SilenceTimeout() {
		// Min duration counts speech content, not the trailing pause.
		if sg.buffered()-sg.silence >= sg.cfg.MinDuration() && sg.speechSeen {
			return segFlush, sg.flush()
		}
		// Too little audio accumulated: noise, not speech.
		sg.Discard()
		return segDiscard, nil
	}

	if sg.cfg.MaxBytes > 0 && len(sg.pcm) > sg.cfg.MaxBytes {
		log.Warnf("segment buffer over byte ceiling (%d bytes), discarding partial segment", len(sg.pcm))
		sg.Discard()
		return segDiscard, nil
	}

	return segNone, nil
}

// flush hands the accumulated audio off as a Segment, trimming trailing
// silence down to the hangover so a long pause does not pad the upload.
func (sg *segmenter) flush() *Segment {
	pcm := sg.pcm
	if trim := sg.silence - silenceHangover; trim > 0 {
		trimBytes := int(float64(trim) / float64(time.Second) * float64(sg.sampleRate) * 2)
		trimBytes -= trimBytes % 2
		if trimBytes > 0 && trimBytes < len(pcm) {
			sg.budget.release(trimBytes)
			pcm = pcm[:len(pcm)-trimBytes]
		}
	}

	seg := &Segment{
		PCM:        pcm,
		Frames:     sg.frames,
		Start:      sg.start,
		End:        sg.end,
		SampleRate: sg.sampleRate,
		budget:     sg.budget,
	}
	sg.reset()
	return seg
}

// ForceFlush emits whatever is buffered, applied when a session ends with
// speech still in flight (bounded timeout, wav replay end). Returns nil when
// the accumulation would be rejected anyway.
func (sg *segmenter) ForceFlush() *Segment {
	if !sg.speechSeen || sg.buffered()-sg.silence < sg.cfg.MinDuration() {
		sg.Discard()
		return nil
	}
	return sg.flush()
}

// Discard drops the partial accumulation and returns its bytes to the budget.
func (sg *segmenter) Discard() {
	sg.budget.release(len(sg.pcm))
	sg.reset()
}

func (sg *segmenter) reset() {
	sg.pcm = nil
	sg.frames = 0
	sg.speechSeen = false
	sg.silence = 0
	sg.start = time.Time{}
	sg.end = time.Time{}
}
