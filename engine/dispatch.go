package engine

import (
	"context"
	"errors"
	"time"

	"voxd/config"
	"voxd/log"
)

// Dispatcher routes segments to the primary engine with a single fallback
// retry when the primary is unavailable. Rejected segments are never retried.
type Dispatcher struct {
	primary  Engine
	fallback Engine
	timeout  time.Duration
	language string
	format   string

	noSpeechThreshold         float64
	compressionRatioThreshold float64
}

// NewDispatcher wires the configured backends. The fallback may be nil.
func NewDispatcher(cfg config.EngineConfig) *Dispatcher {
	d := &Dispatcher{
		primary:                   NewOpenAI("primary", cfg.Primary),
		timeout:                   cfg.Timeout(),
		language:                  cfg.Language,
		format:                    cfg.Format,
		noSpeechThreshold:         cfg.NoSpeechThreshold,
		compressionRatioThreshold: cfg.CompressionRatioThreshold,
	}
	if cfg.Fallback != nil {
		d.fallback = NewOpenAI("fallback", *cfg.Fallback)
	}
	return d
}

// NewDispatcherWith builds a dispatcher over explicit engines, for tests and
// replay tooling.
func NewDispatcherWith(primary, fallback Engine, cfg config.EngineConfig) *Dispatcher {
	return &Dispatcher{
		primary:                   primary,
		fallback:                  fallback,
		timeout:                   cfg.Timeout(),
		language:                  cfg.Language,
		format:                    cfg.Format,
		noSpeechThreshold:         cfg.NoSpeechThreshold,
		compressionRatioThreshold: cfg.CompressionRatioThreshold,
	}
}

// Format returns the upload encoding the dispatcher was configured with.
func (d *Dispatcher) Format() string { return d.format }

// Warm pre-opens backend connections when the engines support it.
func (d *Dispatcher) Warm() {
	type warmer interface{ Warm() }
	if w, ok := d.primary.(warmer); ok {
		w.Warm()
	}
}

// Reset releases backend resources held across calls. Used by the memory
// cleanup path.
func (d *Dispatcher) Reset() {
	type resetter interface{ Reset() }
	for _, e := range []Engine{d.primary, d.fallback} {
		if r, ok := e.(resetter); ok {
			r.Reset()
		}
	}
}

// Transcribe sends one encoded segment and returns filtered text. An empty
// string with a nil error means the segment produced no usable speech.
func (d *Dispatcher) Transcribe(ctx context.Context, audio []byte) (string, *Result, error) {
	req := Request{Audio: audio, Format: d.format, Language: d.language}

	res, err := d.call(ctx, d.primary, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrRejected):
			log.Debugf("engine: segment rejected: %v", err)
			return "", nil, nil
		case errors.Is(err, ErrUnavailable):
			retry := d.fallback
			if retry == nil {
				retry = d.primary
			}
			log.Warnf("engine: primary unavailable, retrying on %s: %v", retry.Name(), err)
			res, err = d.call(ctx, retry, req)
			if err != nil {
				return "", nil, err
			}
		default:
			return "", nil, err
		}
	}

	text, ok := Filter(res, d.noSpeechThreshold, d.compressionRatioThreshold)
	if !ok {
		return "", res, nil
	}
	return text, res, nil
}

func (d *Dispatcher) call(ctx context.Context, e Engine, req Request) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return e.Transcribe(cctx, req)
}
