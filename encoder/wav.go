package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// WAVEncoder wraps raw PCM16 in a RIFF container. No compression; the header
// is patched with final sizes on Close.
type WAVEncoder struct {
	buf         bytes.Buffer
	totalFrames uint64
	encodeTime  time.Duration
	mu          sync.Mutex
}

func NewWAV() *WAVEncoder {
	e := &WAVEncoder{}
	// Placeholder header, sizes patched on Close.
	e.buf.Write(make([]byte, 44))
	return e
}

func (e *WAVEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	e.buf.Write(raw)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WAVEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := e.buf.Bytes()
	dataLen := len(data) - 44
	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	copy(data[0:4], "RIFF")
	binary.LittleEndian.PutUint32(data[4:], uint32(36+dataLen))
	copy(data[8:12], "WAVE")
	copy(data[12:16], "fmt ")
	binary.LittleEndian.PutUint32(data[16:], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(data[20:], 1)  // PCM format
	binary.LittleEndian.PutUint16(data[22:], Channels)
	binary.LittleEndian.PutUint32(data[24:], SampleRate)
	binary.LittleEndian.PutUint32(data[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(data[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(data[34:], BitsPerSample)
	copy(data[36:40], "data")
	binary.LittleEndian.PutUint32(data[40:], uint32(dataLen))
	return nil
}

func (e *WAVEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *WAVEncoder) TotalFrames() uint64 {
	return e.totalFrames
}

func (e *WAVEncoder) AddEncodeTime(d time.Duration) {
	e.mu.Lock()
	e.encodeTime += d
	e.mu.Unlock()
}

func (e *WAVEncoder) EncodeTime() time.Duration {
	return e.encodeTime
}
