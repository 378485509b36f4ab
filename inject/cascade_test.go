package inject

import (
	"context"
	"errors"
	"testing"
	"time"

	"voxd/windowctx"
)

type fakeStrategy struct {
	name     string
	usable   bool
	err      error
	delay    time.Duration
	fallback bool
	calls    int
}

func (f *fakeStrategy) Name() string                        { return f.name }
func (f *fakeStrategy) Usable(wc windowctx.Context) bool    { return f.usable }
func (f *fakeStrategy) IsFallback() bool                    { return f.fallback }
func (f *fakeStrategy) Inject(ctx context.Context, text string, wc windowctx.Context) error {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func staticResolver(wc windowctx.Context) Resolver {
	return func(ctx context.Context) windowctx.Context { return wc }
}

func TestCascadeFirstStrategyWins(t *testing.T) {
	first := &fakeStrategy{name: "first", usable: true}
	second := &fakeStrategy{name: "second", usable: true}
	c := New(staticResolver(windowctx.Context{Display: windowctx.DisplayX11}),
		Entry{first, time.Second}, Entry{second, time.Second})

	res, err := c.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Delivered || res.Method != "first" {
		t.Errorf("got method %q delivered=%v, want first/true", res.Method, res.Delivered)
	}
	if second.calls != 0 {
		t.Error("second strategy should not have been tried")
	}
}

func TestCascadeFallsThroughToTerminal(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeStrategy{name: "a", usable: true, err: boom}
	b := &fakeStrategy{name: "b", usable: true, err: boom}
	term := &fakeStrategy{name: "clipboard", usable: true, fallback: true}
	c := New(staticResolver(windowctx.Context{Display: windowctx.DisplayX11}),
		Entry{a, 100 * time.Millisecond}, Entry{b, 100 * time.Millisecond}, Entry{term, time.Second})

	res, err := c.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Delivered {
		t.Error("fallback result should not count as delivered")
	}
	if !res.FallbackUsed || res.Method != "clipboard" {
		t.Errorf("got method %q fallback=%v, want clipboard/true", res.Method, res.FallbackUsed)
	}
	if len(res.Attempts) != 3 {
		t.Errorf("got %d attempts, want 3", len(res.Attempts))
	}
	for _, at := range res.Attempts[:2] {
		if at.Err == nil {
			t.Errorf("attempt %s should carry its error", at.Strategy)
		}
	}
}

func TestCascadeSkipsUnusableStrategies(t *testing.T) {
	wayland := &fakeStrategy{name: "wayland-only", usable: false}
	ok := &fakeStrategy{name: "ok", usable: true}
	c := New(staticResolver(windowctx.Context{Display: windowctx.DisplayX11}),
		Entry{wayland, time.Second}, Entry{ok, time.Second})

	res, err := c.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wayland.calls != 0 {
		t.Error("unusable strategy must not be invoked")
	}
	if !res.Attempts[0].Skipped {
		t.Error("skipped attempt should be recorded")
	}
	if res.Method != "ok" {
		t.Errorf("got method %q, want ok", res.Method)
	}
}

func TestCascadeTimeoutMovesOn(t *testing.T) {
	slow := &fakeStrategy{name: "slow", usable: true, delay: 2 * time.Second}
	fast := &fakeStrategy{name: "fast", usable: true}
	c := New(staticResolver(windowctx.Context{Display: windowctx.DisplayX11}),
		Entry{slow, 20 * time.Millisecond}, Entry{fast, time.Second})

	start := time.Now()
	res, err := c.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Method != "fast" {
		t.Errorf("got method %q, want fast", res.Method)
	}
	if time.Since(start) > time.Second {
		t.Error("cascade waited past the strategy timeout")
	}
}

func TestCascadeResolvesWindowPerAttempt(t *testing.T) {
	resolves := 0
	resolver := func(ctx context.Context) windowctx.Context {
		resolves++
		return windowctx.Context{Display: windowctx.DisplayX11}
	}
	fail := &fakeStrategy{name: "fail", usable: true, err: errors.New("nope")}
	ok := &fakeStrategy{name: "ok", usable: true}
	c := New(resolver, Entry{fail, time.Second}, Entry{ok, time.Second})

	if _, err := c.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resolves != 2 {
		t.Errorf("window context resolved %d times, want once per attempt (2)", resolves)
	}
}

func TestCascadeEmptyTextIsNoop(t *testing.T) {
	s := &fakeStrategy{name: "s", usable: true}
	c := New(staticResolver(windowctx.Context{}), Entry{s, time.Second})

	res, err := c.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Delivered || s.calls != 0 {
		t.Error("empty text should short-circuit without touching strategies")
	}
}

func TestCascadeAllFailReturnsError(t *testing.T) {
	fail := &fakeStrategy{name: "fail", usable: true, err: errors.New("nope")}
	c := New(staticResolver(windowctx.Context{Display: windowctx.DisplayX11}), Entry{fail, time.Second})

	_, err := c.Run(context.Background(), "hi")
	if !errors.Is(err, ErrNoStrategy) {
		t.Fatalf("got %v, want ErrNoStrategy", err)
	}
}
