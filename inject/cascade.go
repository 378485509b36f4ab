package inject

import (
	"context"
	"errors"
	"time"

	"voxd/clipboard"
	"voxd/config"
	"voxd/log"
	"voxd/windowctx"
)

// ErrNoStrategy is returned by Run only when the cascade was built without a
// terminal strategy, which FromConfig never does.
var ErrNoStrategy = errors.New("no injection strategy succeeded")

// Entry pairs a strategy with its per-attempt timeout.
type Entry struct {
	Strategy Strategy
	Timeout  time.Duration
}

// Resolver produces the focused-window snapshot for one attempt.
type Resolver func(ctx context.Context) windowctx.Context

// Cascade tries strategies in order until one lands the text.
type Cascade struct {
	entries []Entry
	resolve Resolver

	restoreClipboard bool
	restoreDelay     time.Duration
}

// New builds a cascade from explicit entries. The resolver is called before
// every attempt; pass nil to use windowctx.ResolveActive.
func New(resolve Resolver, entries ...Entry) *Cascade {
	c := &Cascade{entries: entries, resolve: resolve, restoreDelay: 500 * time.Millisecond}
	if c.resolve == nil {
		c.resolve = windowctx.ResolveActive
	}
	return c
}

// FromConfig assembles the configured cascade. Unknown strategy names were
// already rejected by config validation.
func FromConfig(cfg config.InjectConfig, resolve Resolver) *Cascade {
	c := &Cascade{
		resolve:          resolve,
		restoreClipboard: cfg.RestoreClipboard,
		restoreDelay:     500 * time.Millisecond,
	}
	if c.resolve == nil {
		c.resolve = windowctx.ResolveActive
	}
	for _, sc := range cfg.Strategies {
		var s Strategy
		switch sc.Name {
		case "uinput":
			s = UinputStrategy{}
		case "wtype":
			s = WtypeStrategy{}
		case "xdotool":
			s = XdotoolStrategy{}
		case "clipboard":
			s = ClipboardStrategy{Notify: cfg.Notify}
		default:
			continue
		}
		c.entries = append(c.entries, Entry{Strategy: s, Timeout: sc.Timeout()})
	}
	return c
}

// fallbackMarker identifies strategies whose success still needs a manual
// paste from the user.
type fallbackMarker interface {
	IsFallback() bool
}

// pasteBased strategies clobber the clipboard as a side effect.
func pasteBased(name string) bool {
	return name == "uinput"
}

// Run pushes text through the cascade. The window context is re-resolved
// before every attempt because focus may move between tries.
func (c *Cascade) Run(ctx context.Context, text string) (Result, error) {
	res := Result{Chars: len(text)}
	if text == "" {
		res.Delivered = true
		res.Method = "noop"
		return res, nil
	}

	var saved clipboard.Saved
	var savedValid bool

	for _, e := range c.entries {
		wc := c.resolve(ctx)

		if !e.Strategy.Usable(wc) {
			res.Attempts = append(res.Attempts, Attempt{Strategy: e.Strategy.Name(), Skipped: true})
			continue
		}

		if c.restoreClipboard && !savedValid && pasteBased(e.Strategy.Name()) {
			saved = clipboard.Save()
			savedValid = true
		}

		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, e.Timeout)
		err := e.Strategy.Inject(actx, text, wc)
		cancel()
		elapsed := time.Since(start)

		res.Attempts = append(res.Attempts, Attempt{
			Strategy: e.Strategy.Name(),
			Err:      err,
			Elapsed:  elapsed,
		})

		if err != nil {
			log.Debugf("inject: %s failed after %s: %v", e.Strategy.Name(), elapsed.Round(time.Millisecond), err)
			continue
		}

		res.Method = e.Strategy.Name()
		if fb, ok := e.Strategy.(fallbackMarker); ok && fb.IsFallback() {
			res.FallbackUsed = true
		} else {
			res.Delivered = true
		}
		log.Injection(res.Method, res.Delivered, elapsed, len(res.Attempts))

		if savedValid && res.Delivered && pasteBased(res.Method) {
			// Wait for the paste keystroke to be consumed before putting
			// the user's clipboard back.
			go func(s clipboard.Saved) {
				time.Sleep(c.restoreDelay)
				s.Restore()
			}(saved)
		}
		return res, nil
	}

	log.Errorf("inject: all %d strategies exhausted", len(c.entries))
	return res, ErrNoStrategy
}
