// Package hotkey watches a global key combination (Ctrl+Shift+Space) and
// turns raw press/release pairs into recording start/stop intents.
package hotkey

import "errors"

// ErrRegistrationConflict means another process owns the combination. The
// caller keeps running; start/stop stays reachable through other triggers.
var ErrRegistrationConflict = errors.New("hotkey combination already registered elsewhere")

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
