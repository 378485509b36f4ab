// Package config provides the configuration schema and loader for the voxd
// dictation daemon. Settings are loaded from a YAML file; API keys may also be
// supplied through the environment or a .env file.
package config

import "time"

// DisplayServer identifies the display protocol injection strategies run against.
type DisplayServer string

const (
	DisplayAuto    DisplayServer = "auto"
	DisplayX11     DisplayServer = "x11"
	DisplayWayland DisplayServer = "wayland"
)

// IsValid reports whether d is a recognised display server value.
func (d DisplayServer) IsValid() bool {
	switch d {
	case DisplayAuto, DisplayX11, DisplayWayland:
		return true
	}
	return false
}

// Config is the root configuration structure for voxd.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	Segment SegmentConfig `yaml:"segment"`
	Session SessionConfig `yaml:"session"`
	Engine  EngineConfig  `yaml:"engine"`
	Inject  InjectConfig  `yaml:"inject"`
	Hotkey  HotkeyConfig  `yaml:"hotkey"`
	Log     LogConfig     `yaml:"log"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	// SampleRate in Hz. The engine side assumes 16 kHz mono PCM16.
	SampleRate uint32 `yaml:"sample_rate"`

	// Channels of capture. Only mono is supported.
	Channels uint32 `yaml:"channels"`

	// FrameSamples is the number of samples per capture frame.
	FrameSamples int `yaml:"frame_samples"`

	// Device names a specific capture device. Empty selects the system default.
	Device string `yaml:"device"`
}

// VADConfig tunes the voice activity detector.
type VADConfig struct {
	// SilenceThreshold seeds the RMS noise floor (normalized 0..1 scale).
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// Margin is the multiplier over the noise floor above which a frame
	// counts as speech.
	Margin float64 `yaml:"margin"`

	// AdaptRate is the exponential moving average coefficient applied to the
	// noise floor on silence frames. Zero disables adaptation.
	AdaptRate float64 `yaml:"adapt_rate"`

	// ModelMode is the webrtcvad aggressiveness (0-3). -1 disables the model
	// stage and falls back to energy-only detection.
	ModelMode int `yaml:"model_mode"`
}

// SegmentConfig bounds segment accumulation.
type SegmentConfig struct {
	// MinDurationS is the minimum segment length in seconds. Shorter
	// accumulations are dropped as noise, never transcribed.
	MinDurationS float64 `yaml:"min_duration"`

	// MaxDurationS forces a flush even without silence.
	MaxDurationS float64 `yaml:"max_duration"`

	// SilenceTimeoutS of continuous silence that ends a segment.
	SilenceTimeoutS float64 `yaml:"silence_timeout"`

	// MaxBytes is the hard byte ceiling of the segment buffer.
	MaxBytes int `yaml:"max_bytes"`
}

// SessionConfig holds pipeline-level limits.
type SessionConfig struct {
	// QueueDepth bounds the pending-segment and pending-result queues.
	QueueDepth int `yaml:"queue_depth"`

	// MemoryCeiling bounds bytes held across the segment buffer and queues.
	MemoryCeiling int64 `yaml:"memory_ceiling"`

	// GracePeriodS bounds how long Stop waits for the injection task to
	// finish or abandon its current attempt.
	GracePeriodS float64 `yaml:"grace_period"`

	// BoundedDurationS is the wall-clock length of a quick-record session.
	BoundedDurationS float64 `yaml:"bounded_duration"`
}

// EngineEntry configures one transcription backend.
type EngineEntry struct {
	// Endpoint is an OpenAI-compatible audio transcription URL.
	Endpoint string `yaml:"endpoint"`

	// Model is the model name sent with each request.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the bearer token.
	// Empty means the endpoint needs no authentication (local server).
	APIKeyEnv string `yaml:"api_key_env"`
}

// EngineConfig configures transcription dispatch and output filtering.
type EngineConfig struct {
	Primary  EngineEntry  `yaml:"primary"`
	Fallback *EngineEntry `yaml:"fallback"`

	// Language hint passed to the engine. Empty means auto-detect.
	Language string `yaml:"language"`

	// Format of the uploaded audio: "wav" or "flac".
	Format string `yaml:"format"`

	// TimeoutS bounds a single transcription call.
	TimeoutS float64 `yaml:"timeout"`

	// NoSpeechThreshold filters results whose no_speech_prob exceeds it.
	NoSpeechThreshold float64 `yaml:"no_speech_threshold"`

	// CompressionRatioThreshold filters degenerate repeated-token output.
	CompressionRatioThreshold float64 `yaml:"compression_ratio_threshold"`
}

// StrategyConfig configures one injection strategy in the cascade.
type StrategyConfig struct {
	// Name of the strategy: uinput, wtype, xdotool, clipboard.
	Name string `yaml:"name"`

	// TimeoutS bounds a single attempt with this strategy.
	TimeoutS float64 `yaml:"timeout"`
}

// InjectConfig configures the injection cascade.
type InjectConfig struct {
	// Strategies in attempt order. The clipboard strategy is appended
	// automatically if absent so the cascade always terminates.
	Strategies []StrategyConfig `yaml:"strategies"`

	// Display selects the display server, or auto-detects from environment.
	Display DisplayServer `yaml:"display"`

	// RestoreClipboard re-installs the previous clipboard contents after a
	// paste-based injection.
	RestoreClipboard bool `yaml:"restore_clipboard"`

	// Notify sends a desktop notification when falling back to the clipboard
	// strategy so the user knows to paste manually.
	Notify bool `yaml:"notify"`
}

// HotkeyConfig configures the global hotkey listener.
type HotkeyConfig struct {
	Enabled bool `yaml:"enabled"`

	// LongPressMs is the press duration separating hold-to-talk from
	// tap-to-toggle.
	LongPressMs int `yaml:"long_press_ms"`
}

// LogConfig configures diagnostics and transcript logging.
type LogConfig struct {
	// Path overrides the log directory. Empty uses the OS default.
	Path string `yaml:"path"`

	// Debug enables debug-level diagnostics.
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration, matching a stock local setup:
// 16 kHz mono capture, 2 s silence timeout, a local OpenAI-compatible engine
// and the uinput, wtype, xdotool, clipboard injection order.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:   16000,
			Channels:     1,
			FrameSamples: 1024,
		},
		VAD: VADConfig{
			SilenceThreshold: 0.01,
			Margin:           1.8,
			AdaptRate:        0.05,
			ModelMode:        3,
		},
		Segment: SegmentConfig{
			MinDurationS:    0.5,
			MaxDurationS:    30,
			SilenceTimeoutS: 2,
			MaxBytes:        2 << 20,
		},
		Session: SessionConfig{
			QueueDepth:       3,
			MemoryCeiling:    8 << 20,
			GracePeriodS:     3,
			BoundedDurationS: 60,
		},
		Engine: EngineConfig{
			Primary: EngineEntry{
				Endpoint: "http://localhost:8000/v1/audio/transcriptions",
				Model:    "mistralai/Voxtral-Mini-3B-2507",
			},
			Language:                  "en",
			Format:                    "wav",
			TimeoutS:                  30,
			NoSpeechThreshold:         0.6,
			CompressionRatioThreshold: 2.4,
		},
		Inject: InjectConfig{
			Strategies: []StrategyConfig{
				{Name: "uinput", TimeoutS: 2},
				{Name: "wtype", TimeoutS: 5},
				{Name: "xdotool", TimeoutS: 5},
				{Name: "clipboard", TimeoutS: 10},
			},
			Display:          DisplayAuto,
			RestoreClipboard: true,
			Notify:           true,
		},
		Hotkey: HotkeyConfig{
			Enabled:     true,
			LongPressMs: 350,
		},
	}
}

// Duration helpers convert the float second fields used in the YAML schema.

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c SegmentConfig) MinDuration() time.Duration     { return seconds(c.MinDurationS) }
func (c SegmentConfig) MaxDuration() time.Duration     { return seconds(c.MaxDurationS) }
func (c SegmentConfig) SilenceTimeout() time.Duration  { return seconds(c.SilenceTimeoutS) }
func (c SessionConfig) GracePeriod() time.Duration     { return seconds(c.GracePeriodS) }
func (c SessionConfig) BoundedDuration() time.Duration { return seconds(c.BoundedDurationS) }
func (c EngineConfig) Timeout() time.Duration          { return seconds(c.TimeoutS) }
func (s StrategyConfig) Timeout() time.Duration        { return seconds(s.TimeoutS) }

func (c HotkeyConfig) LongPress() time.Duration {
	return time.Duration(c.LongPressMs) * time.Millisecond
}

// FrameDuration is the wall-clock length of one capture frame.
func (c AudioConfig) FrameDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.FrameSamples) / float64(c.SampleRate) * float64(time.Second))
}

// FrameBytes is the size of one capture frame in PCM16 bytes.
func (c AudioConfig) FrameBytes() int {
	return c.FrameSamples * 2
}
