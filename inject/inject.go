// Package inject delivers transcribed text into the focused window. Strategies
// are tried in configured order; the clipboard strategy terminates the cascade
// and cannot fail, so every call produces a usable outcome.
package inject

import (
	"context"
	"time"

	"voxd/windowctx"
)

// Strategy is one way of landing text at the cursor.
type Strategy interface {
	Name() string

	// Usable reports whether the strategy applies to the resolved window
	// context, e.g. wtype is pointless outside a Wayland session.
	Usable(wc windowctx.Context) bool

	// Inject attempts delivery. The context carries the per-strategy timeout.
	Inject(ctx context.Context, text string, wc windowctx.Context) error
}

// Attempt records one strategy try within a cascade run.
type Attempt struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
	Skipped  bool
}

// Result is the outcome of a full cascade run.
type Result struct {
	// Delivered is true when text reached the window directly. It is false
	// for the clipboard fallback even though the run still succeeded.
	Delivered bool

	// Method names the strategy that succeeded.
	Method string

	// FallbackUsed is set when the terminal clipboard strategy handled the
	// text and the user must paste manually.
	FallbackUsed bool

	Attempts []Attempt
	Chars    int
}
