//go:build !linux

package chime

import (
	"sync"

	"github.com/gen2brain/malgo"
)

var (
	devMu    sync.Mutex
	malgoCtx *malgo.AllocatedContext
	deadCtx  bool

	queued []int16
	qpos   int
)

// play renders one cue through a shared malgo playback device. The device is
// created lazily and kept open; the callback emits silence between cues.
func play(samples []int16) {
	devMu.Lock()
	defer devMu.Unlock()

	if deadCtx {
		return
	}
	if malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			deadCtx = true
			return
		}
		malgoCtx = ctx
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = playbackRate

	queued = samples
	qpos = 0
	done := make(chan struct{})

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			n := int(frameCount)
			for i := 0; i < n; i++ {
				var s int16
				if qpos < len(queued) {
					s = queued[qpos]
					qpos++
				}
				out[i*2] = byte(s)
				out[i*2+1] = byte(s >> 8)
			}
			if qpos >= len(queued) {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, cfg, callbacks)
	if err != nil {
		return
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		return
	}
	<-done
	device.Stop()
}
