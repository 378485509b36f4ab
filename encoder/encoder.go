// Package encoder turns captured PCM16 blocks into the upload formats the
// transcription engines accept: plain WAV or FLAC.
package encoder

import "time"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// New returns the encoder for an upload format ("wav" or "flac").
func New(format string) (Encoder, error) {
	if format == "flac" {
		return NewFlac()
	}
	return NewWAV(), nil
}
