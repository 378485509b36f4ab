package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voxd/config"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

const verboseBody = `{
	"text": " hello world",
	"language": "en",
	"duration": 1.5,
	"segments": [
		{"text": " hello", "start": 0, "end": 0.7, "no_speech_prob": 0.01, "avg_logprob": -0.2, "compression_ratio": 1.1},
		{"text": " world", "start": 0.7, "end": 1.5, "no_speech_prob": 0.05, "avg_logprob": -0.4, "compression_ratio": 1.3}
	]
}`

func testEntry(url string) config.EngineEntry {
	return config.EngineEntry{Endpoint: url, Model: "test-model"}
}

func TestOpenAITranscribeVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart form: %v", err)
		}
		if got := r.FormValue("model"); got != "test-model" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Write([]byte(verboseBody))
	}))
	defer srv.Close()

	e := NewOpenAI("primary", testEntry(srv.URL))
	res, err := e.Transcribe(context.Background(), Request{Audio: []byte("RIFF"), Format: "wav", Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != " hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.NoSpeechProb != 0.05 {
		t.Errorf("NoSpeechProb = %v, want max across segments 0.05", res.NoSpeechProb)
	}
	if res.CompressionRatio != 1.3 {
		t.Errorf("CompressionRatio = %v, want 1.3", res.CompressionRatio)
	}
	if got := res.AvgLogProb; got < -0.31 || got > -0.29 {
		t.Errorf("AvgLogProb = %v, want mean -0.3", got)
	}
	if len(res.Scores) != 2 {
		t.Errorf("Scores len = %d, want 2", len(res.Scores))
	}
}

func TestOpenAITranscribePlainJSONFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "plain"}`))
	}))
	defer srv.Close()

	e := NewOpenAI("primary", testEntry(srv.URL))
	res, err := e.Transcribe(context.Background(), Request{Audio: []byte("x"), Format: "wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "plain" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestOpenAIStatusClassification(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, ErrRejected},
		{http.StatusUnprocessableEntity, ErrRejected},
		{http.StatusRequestEntityTooLarge, ErrRejected},
		{http.StatusInternalServerError, ErrUnavailable},
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusTooManyRequests, ErrUnavailable},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.code)
		}))
		e := NewOpenAI("primary", testEntry(srv.URL))
		_, err := e.Transcribe(context.Background(), Request{Audio: []byte("x"), Format: "wav"})
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: got %v, want %v", c.code, err, c.want)
		}
		srv.Close()
	}
}

func TestOpenAIConnectionRefusedIsUnavailable(t *testing.T) {
	e := NewOpenAI("primary", testEntry("http://127.0.0.1:1/v1/audio/transcriptions"))
	_, err := e.Transcribe(context.Background(), Request{Audio: []byte("x"), Format: "wav"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func engineCfg() config.EngineConfig {
	return config.EngineConfig{
		Format:                    "wav",
		TimeoutS:                  5,
		NoSpeechThreshold:         0.6,
		CompressionRatioThreshold: 2.4,
	}
}

func TestDispatcherFallsBackWhenPrimaryUnavailable(t *testing.T) {
	primary := NewFake("", ErrUnavailable)
	fallback := NewFake("from fallback", nil)
	d := NewDispatcherWith(primary, fallback, engineCfg())

	text, _, err := d.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "from fallback" {
		t.Errorf("text = %q", text)
	}
	if fallback.Calls != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.Calls)
	}
}

func TestDispatcherDropsRejectedSegments(t *testing.T) {
	primary := NewFake("", ErrRejected)
	fallback := NewFake("should not be used", nil)
	d := NewDispatcherWith(primary, fallback, engineCfg())

	text, _, err := d.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("rejected segment should not surface an error, got %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
	if fallback.Calls != 0 {
		t.Error("rejection must not trigger fallback")
	}
}

func TestDispatcherRetriesPrimaryWithoutFallback(t *testing.T) {
	primary := &Fake{Responses: []FakeResponse{
		{Err: ErrUnavailable},
		{Res: &Result{Text: "second try"}},
	}}
	d := NewDispatcherWith(primary, nil, engineCfg())

	text, _, err := d.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "second try" {
		t.Errorf("text = %q", text)
	}
	if primary.Calls != 2 {
		t.Errorf("primary called %d times, want 2", primary.Calls)
	}
}

func TestDispatcherSurfacesErrorWithoutFallback(t *testing.T) {
	primary := NewFake("", ErrUnavailable)
	d := NewDispatcherWith(primary, nil, engineCfg())

	_, _, err := d.Transcribe(context.Background(), []byte("audio"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want string
		ok   bool
	}{
		{"normal", Result{Text: " hi there "}, "hi there", true},
		{"empty", Result{Text: "   "}, "", false},
		{"no speech", Result{Text: "thanks for watching", NoSpeechProb: 0.9}, "", false},
		{"degenerate", Result{Text: "la la la la la", CompressionRatio: 3.1}, "", false},
		{"borderline kept", Result{Text: "ok", NoSpeechProb: 0.6, CompressionRatio: 2.4}, "ok", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Filter(&c.res, 0.6, 2.4)
			if got != c.want || ok != c.ok {
				t.Errorf("Filter = (%q, %v), want (%q, %v)", got, ok, c.want, c.ok)
			}
		})
	}
}
