// Package audio wraps the platform microphone stream behind a small capture
// interface. PulseAudio backs the Linux build; malgo covers everything else.
package audio

import (
	"errors"
	"strings"
)

const WAVHeaderSize = 44

// ErrDeviceUnavailable means no usable capture device could be opened.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// ErrStreamInterrupted means the OS audio subsystem dropped an open stream
// mid-session. The session moves to its error state; the process keeps running.
var ErrStreamInterrupted = errors.New("audio: capture stream interrupted")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses whether a device name belongs to a Bluetooth headset,
// which typically captures at a much lower quality profile.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives raw little-endian PCM16 mono bytes from the device.
// It runs on the capture backend's thread and must not block.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
