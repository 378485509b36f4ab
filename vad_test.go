package main

import (
	"encoding/binary"
	"math"
	"testing"

	"voxd/config"
)

func genTone(freq float64, durationMs int) []byte {
	n := 16000 * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func genSilence(durationMs int) []byte {
	return make([]byte, 16000*durationMs/1000*2)
}

// energyVADConfig disables the model stage so decisions are deterministic.
func energyVADConfig() config.VADConfig {
	cfg := config.Default().VAD
	cfg.ModelMode = -1
	return cfg
}

func TestVADDetectsTone(t *testing.T) {
	v := newVAD(energyVADConfig(), 16000)
	if !v.Speech(genTone(440, 64)) {
		t.Error("440Hz tone not classified as speech")
	}
}

func TestVADSilence(t *testing.T) {
	v := newVAD(energyVADConfig(), 16000)
	if v.Speech(genSilence(64)) {
		t.Error("expected no voice on silence")
	}
}

func TestVADFloorAdaptsOnSilenceOnly(t *testing.T) {
	v := newVAD(energyVADConfig(), 16000)

	before := v.NoiseFloor()
	v.Speech(genTone(440, 64))
	if v.NoiseFloor() != before {
		t.Errorf("floor moved on a speech frame: %.4f -> %.4f", before, v.NoiseFloor())
	}

	for i := 0; i < 50; i++ {
		v.Speech(genSilence(64))
	}
	if v.NoiseFloor() >= before {
		t.Errorf("floor did not decay on silence: %.4f", v.NoiseFloor())
	}
	if v.NoiseFloor() < before/10 {
		t.Errorf("floor decayed below clamp: %.6f", v.NoiseFloor())
	}
}

func TestVADQuietHumBelowMargin(t *testing.T) {
	cfg := energyVADConfig()
	v := newVAD(cfg, 16000)

	// A hum just above the seed floor but inside the margin is not speech.
	n := 16000 * 64 / 1000
	buf := make([]byte, n*2)
	amp := cfg.SilenceThreshold * 1.2 * 32768
	for i := 0; i < n; i++ {
		sample := int16(amp * math.Sin(2*math.Pi*120*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	if v.Speech(buf) {
		t.Error("hum inside the margin classified as speech")
	}
}

func TestVADResetRestoresSeedFloor(t *testing.T) {
	v := newVAD(energyVADConfig(), 16000)
	seed := v.NoiseFloor()
	for i := 0; i < 50; i++ {
		v.Speech(genSilence(64))
	}
	v.Reset()
	if v.NoiseFloor() != seed {
		t.Errorf("Reset floor = %.4f, want seed %.4f", v.NoiseFloor(), seed)
	}
}
