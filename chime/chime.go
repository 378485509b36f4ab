// Package chime plays short audio cues marking session transitions: a high
// tick on listen start, a lower tick on stop, a low double-beep on error.
// Playback is fire-and-forget; a missing output device silently mutes cues.
package chime

import (
	"math"
	"sync"
)

const playbackRate = 44100

var (
	mu      sync.Mutex
	enabled = true
	once    sync.Once

	startCue []int16
	stopCue  []int16
	errorCue []int16
)

// SetEnabled mutes or unmutes all cues.
func SetEnabled(on bool) {
	mu.Lock()
	enabled = on
	mu.Unlock()
}

func cues() (start, stop, errc []int16) {
	once.Do(func() {
		startCue = tone(1200, 0.2, 0.5, 60)
		stopCue = tone(900, 0.2, 0.5, 40)
		errorCue = doubleTone(350, 0.08, 0.05, 0.6, 30)
	})
	return startCue, stopCue, errorCue
}

// tone synthesizes a mono sine tick with exponential decay.
func tone(freq, duration, volume, decay float64) []int16 {
	n := int(playbackRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / playbackRate
		env := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * env)
	}
	return samples
}

func doubleTone(freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := tone(freq, beepDur, volume, decay)
	gap := make([]int16, int(playbackRate*gapDur))
	out := make([]int16, 0, len(beep)*2+len(gap))
	out = append(out, beep...)
	out = append(out, gap...)
	out = append(out, beep...)
	return out
}

func playCue(samples []int16) {
	mu.Lock()
	on := enabled
	mu.Unlock()
	if !on || len(samples) == 0 {
		return
	}
	go play(samples)
}

// Listening marks the start of a capture session.
func Listening() {
	start, _, _ := cues()
	playCue(start)
}

// Stopped marks the end of a capture session.
func Stopped() {
	_, stop, _ := cues()
	playCue(stop)
}

// Failed marks an unrecoverable session error.
func Failed() {
	_, _, errc := cues()
	playCue(errc)
}
