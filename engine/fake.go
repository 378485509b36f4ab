package engine

import "context"

// Fake is a scripted engine for tests. Each call pops the next queued
// response; when the queue is empty the last response repeats.
type Fake struct {
	Responses []FakeResponse
	Calls     int
}

type FakeResponse struct {
	Res *Result
	Err error
}

func NewFake(text string, err error) *Fake {
	return &Fake{Responses: []FakeResponse{{Res: &Result{Text: text}, Err: err}}}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := f.Calls
	if i >= len(f.Responses) {
		i = len(f.Responses) - 1
	}
	f.Calls++
	r := f.Responses[i]
	return r.Res, r.Err
}
