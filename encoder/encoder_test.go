package encoder

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// sine returns n samples of a 440 Hz tone at moderate amplitude.
func sine(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(SampleRate)))
	}
	return samples
}

func feed(t *testing.T, enc Encoder, samples []int16) {
	t.Helper()
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWAVEncoder(t *testing.T) {
	samples := sine(SampleRate) // 1s
	enc := NewWAV()
	feed(t, enc, samples)

	data := enc.Bytes()
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("got %d bytes, want %d", len(data), 44+len(samples)*2)
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(data[24:]); got != SampleRate {
		t.Errorf("header sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(data[40:]); got != uint32(len(samples)*2) {
		t.Errorf("data chunk size = %d, want %d", got, len(samples)*2)
	}
	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}
}

func TestFlacEncoder(t *testing.T) {
	samples := sine(SampleRate)
	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	feed(t, enc, samples)

	data := enc.Bytes()
	if len(data) == 0 {
		t.Fatal("empty flac output")
	}
	if !bytes.Equal(data[0:4], []byte("fLaC")) {
		t.Fatalf("missing fLaC marker, got %q", data[0:4])
	}
	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}
}

func TestNewFactory(t *testing.T) {
	for _, tc := range []struct {
		format string
	}{
		{"wav"}, {"flac"},
	} {
		enc, err := New(tc.format)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.format, err)
		}
		if enc == nil {
			t.Fatalf("New(%q) returned nil", tc.format)
		}
	}
}
