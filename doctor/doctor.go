// Package doctor runs interactive diagnostics over every moving part the
// dictation pipeline depends on: display tools, the transcription endpoint,
// the hotkey, the microphone and keystroke output.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"voxd/audio"
	"voxd/clipboard"
	"voxd/config"
	"voxd/encoder"
	"voxd/engine"
	"voxd/hotkey"
	"voxd/windowctx"
)

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("voxd doctor - system diagnostics")
	fmt.Println("================================")

	allPass := true

	if !checkDisplayTools(cfg) {
		allPass = false
	}
	if !checkEngine(cfg) {
		allPass = false
	}
	if cfg.Hotkey.Enabled && !checkHotkey() {
		allPass = false
	}
	if allPass && !checkMicAndTranscription(cfg) {
		allPass = false
	}
	if !checkKeystrokeOutput() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

// checkDisplayTools reports which injection strategies the environment can
// serve. Missing tools degrade the cascade but never fail the check outright:
// the clipboard terminal strategy needs nothing external.
func checkDisplayTools(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[1/5] Display server and injection tools")

	display := windowctx.DetectDisplay()
	if cfg.Inject.Display != "auto" {
		display = windowctx.DisplayServer(cfg.Inject.Display)
		fmt.Printf("  display: %s (pinned by config)\n", display)
	} else {
		fmt.Printf("  display: %s\n", display)
	}

	for _, tool := range []string{"wtype", "xdotool", "xprop", "notify-send"} {
		if _, err := exec.LookPath(tool); err != nil {
			fmt.Printf("  missing: %s\n", tool)
		} else {
			fmt.Printf("  found:   %s\n", tool)
		}
	}

	if display == windowctx.DisplayNone {
		fmt.Println("  WARN: no display server detected, only clipboard injection will work")
	}
	fmt.Println("  PASS: clipboard terminal strategy is always available")
	return true
}

func checkEngine(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[2/5] Transcription endpoint")

	entry := cfg.Engine.Primary
	if entry.APIKeyEnv != "" && os.Getenv(entry.APIKeyEnv) == "" {
		fmt.Printf("  WARN: %s is not set\n", entry.APIKeyEnv)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(entry.Endpoint)
	if err != nil {
		fmt.Printf("  FAIL: %s unreachable: %v\n", entry.Endpoint, err)
		return false
	}
	resp.Body.Close()
	fmt.Printf("  PASS: %s reachable (HTTP %d)\n", entry.Endpoint, resp.StatusCode)
	return true
}

func checkHotkey() bool {
	fmt.Println()
	fmt.Println("[3/5] Hotkey detection")
	fmt.Println("Press Ctrl+Shift+Space...")

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid triggering the next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// The grab may leave the terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicAndTranscription(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[4/5] Microphone and transcription")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	stop := make(chan struct{})
	go func() {
		time.Sleep(3 * time.Second)
		close(stop)
	}()

	pcm, err := recordAudio(ctx, cfg, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(pcm) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}
	fmt.Printf("  Recorded %.1f KB, transcribing...\n", float64(len(pcm))/1024)

	data, err := encodePCM(pcm, cfg.Engine.Format)
	if err != nil {
		fmt.Printf("  FAIL: encode error: %v\n", err)
		return false
	}

	dispatcher := engine.NewDispatcher(cfg.Engine)
	text, _, err := dispatcher.Transcribe(context.Background(), data)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func recordAudio(ctx audio.Context, cfg *config.Config, stop <-chan struct{}) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	done := make(chan struct{})

	capture, err := ctx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})
	if err != nil {
		return nil, err
	}
	defer capture.Close()

	capture.SetCallback(func(data []byte, _ uint32) {
		bufMu.Lock()
		pcmBuf = append(pcmBuf, data...)
		bufMu.Unlock()
	})

	if err := capture.Start(); err != nil {
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)
	capture.Stop()
	fmt.Println(" done")

	bufMu.Lock()
	defer bufMu.Unlock()
	return pcmBuf, nil
}

func encodePCM(pcm []byte, format string) ([]byte, error) {
	enc, err := encoder.New(format)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
	}
	for off := 0; off < len(samples); off += encoder.BlockSize {
		end := off + encoder.BlockSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := enc.EncodeBlock(samples[off:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

func checkKeystrokeOutput() bool {
	fmt.Println()
	fmt.Println("[5/5] Keystroke output")

	if err := clipboard.Init(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		fmt.Println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}

	msg, err := clipboard.Verify()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)
	return true
}
