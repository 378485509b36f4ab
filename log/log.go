// Package log writes voxd's diagnostics and transcript logs. Diagnostics go
// through zerolog to a pid-tagged file; transcribed text goes to a separate
// plain-text file so users can grep their dictation history.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	debugEnabled   bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: VOXD_LOG_PATH environment variable
	envPath := os.Getenv("VOXD_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func SetDebug(on bool) {
	debugEnabled = on
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Debugf is used for expected, frequent outcomes (segment rejection,
// low-confidence filtering) that must never reach warn level.
func Debugf(format string, args ...any) {
	if logReady && debugEnabled {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

// StateChange records a session state transition.
func StateChange(from, to string) {
	if logReady {
		diagLog.Info().Str("from", from).Str("to", to).Msg("state")
	}
}

// SegmentMetrics describes one transcribed segment end to end.
type SegmentMetrics struct {
	AudioLengthS     float64
	RawSizeKB        float64
	UploadSizeKB     float64
	CompressionPct   float64
	EncodeTimeMs     float64
	DNSTimeMs        float64
	TLSTimeMs        float64
	TTFBMs           float64
	TotalTimeMs      float64
	Confidence       float64
	NoSpeechProb     float64
	CompressionRatio float64
}

func Segment(m SegmentMetrics, format, engine string, connReused bool) {
	if !logReady {
		return
	}

	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("format", format).
		Str("engine", engine).
		Str("conn", connStatus).
		Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("upload_kb", m.UploadSizeKB).
		Float64("compression_pct", m.CompressionPct).
		Float64("encode_ms", m.EncodeTimeMs).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Float64("confidence", m.Confidence).
		Float64("no_speech_prob", m.NoSpeechProb).
		Float64("compression_ratio", m.CompressionRatio).
		Msg("segment")
}

// Injection records the outcome of one injection cascade call.
func Injection(method string, success bool, elapsed time.Duration, attempts int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("method", method).
		Bool("success", success).
		Float64("elapsed_ms", float64(elapsed.Milliseconds())).
		Int("attempts", attempts).
		Msg("injection")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(engine, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(segments int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("segments", segments).
		Msg("session_end")
}
