package main

import (
	"encoding/binary"
	"math"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"voxd/config"
	"voxd/log"
)

const (
	vadFrameMs  = 20
	vadDebounce = 3 // consecutive model speech frames to confirm voice
)

// vadDetector classifies capture frames as speech or silence. Two stages are
// combined with OR: a short-time energy gate against an adaptive noise floor,
// and a webrtcvad model stage with debounce. Either stage alone misfires
// (energy on keyboard thumps, the model on breathy noise); together they
// track the original tuning well. If the model cannot be initialised the
// detector degrades to energy only.
type vadDetector struct {
	sampleRate uint32
	margin     float64
	adaptRate  float64
	noiseFloor float64
	seedFloor  float64

	model      *webrtcvad.VAD
	modelBuf   []byte
	frameBytes int
	speechRun  int
	modelVoice bool
}

func newVAD(cfg config.VADConfig, sampleRate uint32) *vadDetector {
	v := &vadDetector{
		sampleRate: sampleRate,
		margin:     cfg.Margin,
		adaptRate:  cfg.AdaptRate,
		noiseFloor: cfg.SilenceThreshold,
		seedFloor:  cfg.SilenceThreshold,
		frameBytes: int(sampleRate) * vadFrameMs / 1000 * 2,
	}
	if cfg.ModelMode >= 0 {
		model, err := webrtcvad.New()
		if err == nil {
			err = model.SetMode(cfg.ModelMode)
		}
		if err != nil {
			log.Warnf("vad: model stage unavailable, using energy only: %v", err)
		} else {
			v.model = model
		}
	}
	return v
}

// rms computes root-mean-square energy of PCM16 bytes on a 0..1 scale.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Speech classifies one capture frame.
func (v *vadDetector) Speech(pcm []byte) bool {
	energy := rms(pcm)
	energyVoice := energy > v.noiseFloor*v.margin

	if !energyVoice && v.adaptRate > 0 {
		// Adapt the floor on silence frames only, so sustained speech
		// cannot talk the threshold up past itself.
		v.noiseFloor = v.noiseFloor*(1-v.adaptRate) + energy*v.adaptRate
		if v.noiseFloor < v.seedFloor/10 {
			v.noiseFloor = v.seedFloor / 10
		}
	}

	return energyVoice || v.modelSpeech(pcm)
}

// modelSpeech runs the webrtcvad stage over fixed 20 ms frames, latching
// voice after vadDebounce consecutive speech frames and unlatching on the
// first silence frame.
func (v *vadDetector) modelSpeech(pcm []byte) bool {
	if v.model == nil {
		return false
	}
	v.modelBuf = append(v.modelBuf, pcm...)
	for len(v.modelBuf) >= v.frameBytes {
		frame := v.modelBuf[:v.frameBytes]
		v.modelBuf = v.modelBuf[v.frameBytes:]

		active, err := v.model.Process(int(v.sampleRate), frame)
		if err != nil {
			continue
		}
		if active {
			v.speechRun++
			if v.speechRun >= vadDebounce {
				v.modelVoice = true
			}
		} else {
			v.speechRun = 0
			v.modelVoice = false
		}
	}
	return v.modelVoice
}

// NoiseFloor exposes the current adaptive floor for diagnostics.
func (v *vadDetector) NoiseFloor() float64 { return v.noiseFloor }

// Reset clears per-session state while keeping the learned noise floor.
func (v *vadDetector) Reset() {
	v.modelBuf = v.modelBuf[:0]
	v.speechRun = 0
	v.modelVoice = false
}
