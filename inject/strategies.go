package inject

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"voxd/clipboard"
	"voxd/windowctx"
)

// UinputStrategy pastes through the virtual keyboard device: clipboard copy
// followed by a synthetic Ctrl+V. Works on both X11 and Wayland because the
// keystroke originates at the kernel input layer.
type UinputStrategy struct{}

func (UinputStrategy) Name() string { return "uinput" }

func (UinputStrategy) Usable(wc windowctx.Context) bool {
	return wc.Display != windowctx.DisplayNone
}

func (UinputStrategy) Inject(ctx context.Context, text string, wc windowctx.Context) error {
	if err := clipboard.Init(); err != nil {
		return fmt.Errorf("uinput: %w", err)
	}
	if err := clipboard.Copy(text); err != nil {
		return fmt.Errorf("uinput copy: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- clipboard.Paste() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WtypeStrategy types natively on Wayland compositors that implement the
// virtual keyboard protocol.
type WtypeStrategy struct{}

func (WtypeStrategy) Name() string { return "wtype" }

func (WtypeStrategy) Usable(wc windowctx.Context) bool {
	return wc.Display == windowctx.DisplayWayland
}

func (WtypeStrategy) Inject(ctx context.Context, text string, wc windowctx.Context) error {
	out, err := exec.CommandContext(ctx, "wtype", "--", text).CombinedOutput()
	if err != nil {
		return fmt.Errorf("wtype: %w: %s", err, firstLine(out))
	}
	return nil
}

// XdotoolStrategy types through the X server, targeting the resolved window
// when one is known so late focus changes cannot misroute the text.
type XdotoolStrategy struct{}

func (XdotoolStrategy) Name() string { return "xdotool" }

func (XdotoolStrategy) Usable(wc windowctx.Context) bool {
	return wc.Display == windowctx.DisplayX11
}

func (XdotoolStrategy) Inject(ctx context.Context, text string, wc windowctx.Context) error {
	args := []string{"type", "--clearmodifiers"}
	if wc.WindowID != "" {
		args = append(args, "--window", wc.WindowID)
	}
	args = append(args, "--", text)
	out, err := exec.CommandContext(ctx, "xdotool", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xdotool: %w: %s", err, firstLine(out))
	}
	return nil
}

// ClipboardStrategy is the terminal fallback: copy the text and tell the user
// to paste. It succeeds whenever the clipboard is writable, which makes the
// cascade total.
type ClipboardStrategy struct {
	// Notify posts a desktop notification on use.
	Notify bool
}

func (ClipboardStrategy) Name() string { return "clipboard" }

func (ClipboardStrategy) Usable(wc windowctx.Context) bool { return true }

func (s ClipboardStrategy) Inject(ctx context.Context, text string, wc windowctx.Context) error {
	if err := clipboard.Copy(text); err != nil {
		return fmt.Errorf("clipboard copy: %w", err)
	}
	if s.Notify {
		// Best effort, the text is already safe on the clipboard.
		nctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		exec.CommandContext(nctx, "notify-send", "-a", "voxd",
			"Text copied to clipboard", "Press Ctrl+V to paste.").Run()
	}
	return nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// IsFallback marks the clipboard strategy as requiring a manual paste.
func (ClipboardStrategy) IsFallback() bool { return true }
