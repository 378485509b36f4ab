package engine

import (
	"strings"

	"voxd/log"
)

// Filter applies the quality thresholds to a transcription result. It
// returns the trimmed text and whether it should be used. Degenerate output
// (hallucinated silence, repeated-token loops) is discarded here so it never
// reaches the user's cursor.
func Filter(res *Result, noSpeechThreshold, compressionRatioThreshold float64) (string, bool) {
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", false
	}
	if noSpeechThreshold > 0 && res.NoSpeechProb > noSpeechThreshold {
		log.Debugf("engine: filtered no-speech result (p=%.2f): %q", res.NoSpeechProb, clip(text))
		return "", false
	}
	if compressionRatioThreshold > 0 && res.CompressionRatio > compressionRatioThreshold {
		log.Debugf("engine: filtered degenerate result (ratio=%.2f): %q", res.CompressionRatio, clip(text))
		return "", false
	}
	return text, true
}

func clip(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
