package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"voxd/audio"
	"voxd/chime"
	"voxd/clipboard"
	"voxd/config"
	"voxd/doctor"
	"voxd/engine"
	"voxd/hotkey"
	"voxd/inject"
	"voxd/log"
	"voxd/login"
	"voxd/shutdown"
	"voxd/update"
	"voxd/windowctx"
)

var version = "dev"

func runUpdate() int {
	if version == "dev" {
		fmt.Println("Dev build, cannot check for updates.")
		return 0
	}
	fmt.Printf("voxd %s, checking for updates...\n", version)
	rel, err := update.Check(version)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if rel == nil {
		fmt.Println("Already up to date.")
		return 0
	}
	fmt.Printf("Update available: %s -> %s\n", version, rel.Version)
	fmt.Print("Continue? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	if answer != "y" && answer != "Y" {
		fmt.Println("Aborted.")
		return 0
	}
	fmt.Printf("Downloading %s...\n", rel.Version)
	if err := update.Apply(rel); err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	fmt.Printf("Updated to %s\n", rel.Version)
	return 0
}

func runAutostart(action string, cfg *config.Config) int {
	envKeys := []string{}
	if cfg.Engine.Primary.APIKeyEnv != "" {
		envKeys = append(envKeys, cfg.Engine.Primary.APIKeyEnv)
	}
	if cfg.Engine.Fallback != nil && cfg.Engine.Fallback.APIKeyEnv != "" {
		envKeys = append(envKeys, cfg.Engine.Fallback.APIKeyEnv)
	}

	switch action {
	case "on":
		if err := login.Enable(envKeys); err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		fmt.Println("Start-at-login enabled.")
	case "off":
		if err := login.Disable(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		fmt.Println("Start-at-login disabled.")
	case "status":
		if login.Enabled() {
			fmt.Println("Start-at-login is enabled.")
		} else {
			fmt.Println("Start-at-login is disabled.")
		}
	default:
		fmt.Printf("Error: unknown autostart action %q (use on, off or status)\n", action)
		return 1
	}
	return 0
}

func run() {
	if len(os.Args) > 1 && os.Args[1] == "update" {
		os.Exit(runUpdate())
	}

	configFlag := flag.String("config", "voxd.yaml", "Path to YAML configuration file")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	wavFlag := flag.String("wav", "", "Replay a WAV file through the pipeline instead of the microphone")
	forFlag := flag.Duration("for", 0, "Record one bounded session of this length and exit (e.g. 20s)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	muteFlag := flag.Bool("mute", false, "Disable audio cues")
	autostartFlag := flag.String("autostart", "", "Manage start-at-login: on, off or status")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("voxd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *forFlag > 0 {
		cfg.Session.BoundedDurationS = forFlag.Seconds()
	}

	if *autostartFlag != "" {
		os.Exit(runAutostart(*autostartFlag, cfg))
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	log.SetDebug(*debugFlag || cfg.Log.Debug)

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	update.StartBackgroundCheck(version, log.Dir(), func(rel update.Release) {
		log.Info("update_available: " + rel.Version)
		fmt.Fprintf(os.Stderr, "voxd %s is available, run `voxd update` to install\n", rel.Version)
	})

	chime.SetEnabled(!*muteFlag)

	if err := clipboard.Init(); err != nil {
		fmt.Printf("Warning: paste init failed: %v\n", err)
		fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
	}

	// Audio source: real microphone, or a WAV replay context that feeds the
	// same pipeline at file speed.
	var audioCtx audio.Context
	replay := *wavFlag != ""
	if replay {
		fake, err := audio.NewFakeContext(*wavFlag, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			os.Exit(1)
		}
		audioCtx = fake
	} else {
		audioCtx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Printf("Error initializing audio context: %v\n", err)
			os.Exit(1)
		}
	}
	defer audioCtx.Close()

	var selectedDevice *audio.DeviceInfo
	if !replay {
		if *deviceFlag != "" {
			if devices, err := audioCtx.Devices(); err == nil {
				for i := range devices {
					if devices[i].Name == *deviceFlag {
						selectedDevice = &devices[i]
						break
					}
				}
			}
			if selectedDevice == nil {
				fmt.Printf("Warning: device %q not found, using default\n", *deviceFlag)
			}
		} else if *setupFlag {
			selectedDevice, err = selectDevice(audioCtx)
			if err != nil {
				log.Warnf("device selection failed: %v", err)
				fmt.Printf("Warning: device selection failed: %v\n", err)
				fmt.Println("Falling back to default device")
				selectedDevice = nil
			}
		}
	}

	resolver := windowctx.ResolveActive
	if cfg.Inject.Display != "auto" {
		pinned := windowctx.DisplayServer(cfg.Inject.Display)
		resolver = func(ctx context.Context) windowctx.Context {
			return windowctx.ResolveOn(ctx, pinned)
		}
	}

	status := NewStatusPublisher()
	ctrl := NewSessionController(status)
	dispatcher := engine.NewDispatcher(cfg.Engine)
	cascade := inject.FromConfig(cfg.Inject, resolver)
	pipeline := NewPipeline(cfg, audioCtx, selectedDevice, dispatcher, cascade, ctrl, status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		if err := pipeline.Run(ctx); err != nil {
			log.Errorf("pipeline error: %v", err)
		}
	}()

	go watchStatus(status)

	var hy *hotkey.Hybrid
	if cfg.Hotkey.Enabled && !replay {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			// A conflicting binding is not fatal: stdin commands still work.
			log.Warnf("hotkey register: %v", err)
			fmt.Printf("Warning: %v\n", err)
		} else {
			defer hk.Unregister()
			hy = hotkey.NewHybrid(hk, cfg.Hotkey.LongPress())
			defer hy.Close()
			go func() {
				for {
					select {
					case <-hy.Start():
						// Hold and tap both stop via StopChan, never a timer.
						pipeline.RequestStart(ModeUnbounded)
					case <-hy.StopChan():
						pipeline.RequestStop()
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		pipeline.RequestStop()
		select {
		case <-pipeline.SessionDone():
		case <-time.After(cfg.Session.GracePeriod()):
		}
		cancel()
	}()

	if replay || *forFlag > 0 {
		mode := ModeUnbounded
		if !replay {
			fmt.Printf("Recording for %s...\n", *forFlag)
			mode = ModeBounded
		}
		pipeline.RequestStart(mode)
		select {
		case <-pipeline.SessionDone():
			// Give in-flight transcription and injection time to drain.
			time.Sleep(cfg.Session.GracePeriod())
		case <-ctx.Done():
		}
		cancel()
		<-pipeDone
		log.SessionEnd(ctrl.SegmentCount())
		return
	}

	fmt.Println("voxd ready. Commands: start, stop, status, quit. Ctrl+Shift+Space toggles by hotkey.")
	commandLoop(ctx, cancel, pipeline, status)
	<-pipeDone
	log.SessionEnd(ctrl.SegmentCount())
}

// commandLoop services stdin commands until quit, EOF or cancellation.
func commandLoop(ctx context.Context, cancel context.CancelFunc, pipeline *Pipeline, status *StatusPublisher) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				cancel()
				return
			}
			switch strings.TrimSpace(line) {
			case "start":
				pipeline.RequestStart(ModeUnbounded)
			case "stop":
				pipeline.RequestStop()
			case "status":
				printStatus(status.Snapshot())
			case "quit", "exit":
				pipeline.RequestStop()
				cancel()
				return
			case "":
			default:
				fmt.Println("Commands: start, stop, status, quit")
			}
		}
	}
}

func printStatus(s Status) {
	fmt.Printf("state: %s\n", s.State)
	if s.Device != "" {
		fmt.Printf("device: %s\n", s.Device)
	}
	fmt.Printf("segments: %d (dropped %d)\n", s.Segments, s.DroppedSegments)
	if s.LastText != "" {
		fmt.Printf("last: %q at %s\n", s.LastText, s.LastTextAt.Format("15:04:05"))
	}
	if s.LastInjection != nil {
		fmt.Printf("injection: method=%s fallback=%v attempts=%d\n",
			s.LastInjection.Method, s.LastInjection.FallbackUsed, len(s.LastInjection.Attempts))
	}
	if s.Err != nil {
		fmt.Printf("error: %v\n", s.Err)
	}
}

// watchStatus plays audio cues on session transitions.
func watchStatus(status *StatusPublisher) {
	prev := StateIdle
	for s := range status.Subscribe() {
		if s.State == prev {
			continue
		}
		switch s.State {
		case StateListening:
			chime.Listening()
		case StateError:
			chime.Failed()
		case StateIdle:
			if prev == StateListening || prev == StateFlushing {
				chime.Stopped()
			}
		}
		prev = s.State
	}
}
