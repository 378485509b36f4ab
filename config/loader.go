package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KnownStrategies lists the injection strategies the cascade can build.
var KnownStrategies = []string{"uinput", "wtype", "xdotool", "clipboard"}

// Load reads the YAML configuration at path over the built-in defaults and
// returns a validated [Config]. A missing file is not an error: defaults are
// returned unchanged. A .env file next to the working directory is loaded
// first so api_key_env references resolve.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are built from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate == 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is unsupported; only mono capture is implemented", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSamples <= 0 {
		errs = append(errs, errors.New("audio.frame_samples must be positive"))
	}

	if cfg.VAD.SilenceThreshold <= 0 || cfg.VAD.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.4f is out of range (0, 1)", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.Margin < 1 {
		errs = append(errs, fmt.Errorf("vad.margin %.2f must be at least 1", cfg.VAD.Margin))
	}
	if cfg.VAD.AdaptRate < 0 || cfg.VAD.AdaptRate > 1 {
		errs = append(errs, fmt.Errorf("vad.adapt_rate %.2f is out of range [0, 1]", cfg.VAD.AdaptRate))
	}
	if cfg.VAD.ModelMode < -1 || cfg.VAD.ModelMode > 3 {
		errs = append(errs, fmt.Errorf("vad.model_mode %d is out of range [-1, 3]", cfg.VAD.ModelMode))
	}

	if cfg.Segment.MinDurationS <= 0 {
		errs = append(errs, errors.New("segment.min_duration must be positive"))
	}
	if cfg.Segment.MaxDurationS <= cfg.Segment.MinDurationS {
		errs = append(errs, fmt.Errorf("segment.max_duration %.1fs must exceed min_duration %.1fs",
			cfg.Segment.MaxDurationS, cfg.Segment.MinDurationS))
	}
	if cfg.Segment.SilenceTimeoutS <= 0 {
		errs = append(errs, errors.New("segment.silence_timeout must be positive"))
	}
	if cfg.Segment.MaxBytes <= cfg.Audio.FrameBytes() {
		errs = append(errs, fmt.Errorf("segment.max_bytes %d must hold at least one frame (%d bytes)",
			cfg.Segment.MaxBytes, cfg.Audio.FrameBytes()))
	}

	if cfg.Session.QueueDepth <= 0 {
		errs = append(errs, errors.New("session.queue_depth must be positive"))
	}
	if cfg.Session.MemoryCeiling < int64(cfg.Segment.MaxBytes) {
		errs = append(errs, fmt.Errorf("session.memory_ceiling %d must be at least segment.max_bytes %d",
			cfg.Session.MemoryCeiling, cfg.Segment.MaxBytes))
	}

	if cfg.Engine.Primary.Endpoint == "" {
		errs = append(errs, errors.New("engine.primary.endpoint is required"))
	}
	if cfg.Engine.Fallback != nil && cfg.Engine.Fallback.Endpoint == "" {
		errs = append(errs, errors.New("engine.fallback.endpoint is required when fallback is set"))
	}
	switch cfg.Engine.Format {
	case "wav", "flac":
	default:
		errs = append(errs, fmt.Errorf("engine.format %q is invalid; valid values: wav, flac", cfg.Engine.Format))
	}
	if cfg.Engine.TimeoutS <= 0 {
		errs = append(errs, errors.New("engine.timeout must be positive"))
	}

	if !cfg.Inject.Display.IsValid() {
		errs = append(errs, fmt.Errorf("inject.display %q is invalid; valid values: auto, x11, wayland", cfg.Inject.Display))
	}
	if len(cfg.Inject.Strategies) == 0 {
		errs = append(errs, errors.New("inject.strategies must not be empty"))
	}
	for i, s := range cfg.Inject.Strategies {
		if !slices.Contains(KnownStrategies, s.Name) {
			errs = append(errs, fmt.Errorf("inject.strategies[%d].name %q is unknown; valid values: uinput, wtype, xdotool, clipboard", i, s.Name))
		}
		if s.TimeoutS <= 0 {
			errs = append(errs, fmt.Errorf("inject.strategies[%d].timeout must be positive", i))
		}
	}
	// The clipboard strategy terminates the cascade; without it a total
	// failure would be reachable.
	hasClipboard := slices.ContainsFunc(cfg.Inject.Strategies, func(s StrategyConfig) bool {
		return s.Name == "clipboard"
	})
	if !hasClipboard {
		cfg.Inject.Strategies = append(cfg.Inject.Strategies, StrategyConfig{Name: "clipboard", TimeoutS: 10})
	}

	return errors.Join(errs...)
}
