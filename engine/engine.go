// Package engine dispatches finished audio segments to a speech-to-text
// backend and classifies its failures so the session loop can react
// proportionately: rejected segments are dropped, unavailable engines fall
// back, degenerate output is filtered.
package engine

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrRejected means the engine refused the segment itself (too short,
// malformed, unsupported format). Never retried; logged at debug level.
var ErrRejected = errors.New("segment rejected by engine")

// ErrUnavailable means the engine could not be reached or crashed. The
// dispatcher retries once against the fallback engine when one is configured.
var ErrUnavailable = errors.New("engine unavailable")

// Request carries one encoded segment to an engine.
type Request struct {
	Audio    []byte
	Format   string // "wav" or "flac"
	Language string // empty means auto-detect
}

// SegmentScore holds the per-segment quality numbers from a verbose
// transcription response.
type SegmentScore struct {
	Text             string
	Start            float64
	End              float64
	NoSpeechProb     float64
	AvgLogProb       float64
	CompressionRatio float64
	Temperature      float64
}

// Result is a successful transcription. Text may still be filtered out
// afterwards by quality thresholds.
type Result struct {
	Text             string
	Language         string
	Duration         float64
	NoSpeechProb     float64 // max across segments
	AvgLogProb       float64 // mean across segments
	CompressionRatio float64 // max across segments
	Scores           []SegmentScore
	Latency          time.Duration
	Metrics          *NetworkMetrics
	RateLimit        string
}

// Engine transcribes one segment per call.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// NetworkMetrics breaks one HTTP transcription call into phases.
type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}
