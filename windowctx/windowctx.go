// Package windowctx resolves a best-effort snapshot of the currently focused
// window. The snapshot steers injection strategy choice and is never cached:
// focus can change between the end of speech and the moment text lands.
package windowctx

import (
	"context"
	"os"
	"strings"
	"time"
)

// DisplayServer identifies the session's display protocol.
type DisplayServer string

const (
	DisplayWayland DisplayServer = "wayland"
	DisplayX11     DisplayServer = "x11"
	DisplayNone    DisplayServer = "none"
)

// Context describes the focused window at one instant. Identity fields may be
// empty when the compositor withholds them (Wayland) or resolution failed;
// callers treat an empty identity as "proceed with the least specific
// strategy", not as an error.
type Context struct {
	WindowID     string
	Title        string
	Class        string
	IsTextEditor bool
	Display      DisplayServer
}

// Empty reports whether no window identity could be resolved.
func (c Context) Empty() bool {
	return c.WindowID == ""
}

// resolveTimeout bounds every external lookup so injection latency stays flat
// even when the display server is wedged.
const resolveTimeout = 500 * time.Millisecond

// editorHints are matched case-insensitively against the window title and
// class to set the text-editor hint.
var editorHints = []string{
	"code", "gedit", "kate", "sublime", "atom", "notepad", "vim", "nano",
}

func isEditor(title, class string) bool {
	t := strings.ToLower(title)
	cl := strings.ToLower(class)
	for _, h := range editorHints {
		if strings.Contains(t, h) || strings.Contains(cl, h) {
			return true
		}
	}
	return false
}

// DetectDisplay inspects the session environment. Wayland wins when both
// protocols are advertised, matching what the compositor actually serves.
func DetectDisplay() DisplayServer {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayWayland
	}
	if os.Getenv("DISPLAY") != "" {
		return DisplayX11
	}
	return DisplayNone
}

// ResolveActive returns the focused-window snapshot. It never returns an
// error: failure modes collapse into a Context with empty identity fields.
func ResolveActive(ctx context.Context) Context {
	return ResolveOn(ctx, DetectDisplay())
}

// ResolveOn is ResolveActive with the display server pinned, for configs that
// override autodetection.
func ResolveOn(ctx context.Context, display DisplayServer) Context {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	switch display {
	case DisplayX11:
		return resolveX11(ctx)
	case DisplayWayland:
		// Wayland compositors withhold window identity from clients.
		return Context{Display: DisplayWayland}
	default:
		return Context{Display: DisplayNone}
	}
}
