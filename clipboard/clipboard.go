// Package clipboard wraps the system clipboard and the synthetic paste
// keystroke used to deliver transcribed text into the focused window.
package clipboard

import (
	cb "github.com/atotto/clipboard"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Saved holds the clipboard contents captured before an injection so the
// user's own clipboard can be put back afterwards.
type Saved struct {
	text string
	ok   bool
}

// Save snapshots the current clipboard. A read failure is not fatal; Restore
// becomes a no-op in that case.
func Save() Saved {
	text, err := cb.ReadAll()
	return Saved{text: text, ok: err == nil}
}

func (s Saved) Restore() error {
	if !s.ok {
		return nil
	}
	return cb.WriteAll(s.text)
}
