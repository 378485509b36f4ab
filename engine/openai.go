package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"voxd/config"
)

// OpenAI talks to any OpenAI-compatible transcription endpoint: a local
// vLLM/whisper server, Groq, or api.openai.com itself. The endpoint, model
// and credentials come from configuration.
type OpenAI struct {
	name   string
	client *TracedClient
	apiURL string
	model  string
	apiKey string
}

// NewOpenAI builds an engine from one configured backend entry.
func NewOpenAI(name string, entry config.EngineEntry) *OpenAI {
	var key string
	if entry.APIKeyEnv != "" {
		key = os.Getenv(entry.APIKeyEnv)
	}
	return &OpenAI{
		name:   name,
		client: NewTracedClient(),
		apiURL: entry.Endpoint,
		model:  entry.Model,
		apiKey: key,
	}
}

func (o *OpenAI) Name() string { return o.name }

// Warm pre-opens the HTTP connection.
func (o *OpenAI) Warm() { go o.client.Warm(o.apiURL) }

// Reset drops the engine's idle connections.
func (o *OpenAI) Reset() { o.client.Reset() }

// verboseResponse is the verbose_json shape shared by whisper-family servers.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text             string  `json:"text"`
		Start            float64 `json:"start"`
		End              float64 `json:"end"`
		NoSpeechProb     float64 `json:"no_speech_prob"`
		AvgLogProb       float64 `json:"avg_logprob"`
		CompressionRatio float64 `json:"compression_ratio"`
		Temperature      float64 `json:"temperature"`
	} `json:"segments"`
}

func (o *OpenAI) Transcribe(ctx context.Context, treq Request) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+treq.Format)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(treq.Audio); err != nil {
		return nil, err
	}

	writer.WriteField("model", o.model)
	writer.WriteField("response_format", "verbose_json")
	if treq.Language != "" {
		writer.WriteField("language", treq.Language)
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiURL, &body)
	if err != nil {
		return nil, err
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(o.name, err)
	}
	if resp.StatusCode != 200 {
		return nil, classifyStatus(o.name, resp.StatusCode, resp.Body)
	}

	var vr verboseResponse
	if err := json.Unmarshal(resp.Body, &vr); err != nil {
		// Some servers honor response_format only partially; fall back to
		// the plain json shape before giving up.
		var plain struct {
			Text string `json:"text"`
		}
		if err2 := json.Unmarshal(resp.Body, &plain); err2 != nil {
			return nil, fmt.Errorf("%s response parse error: %w", o.name, err)
		}
		vr = verboseResponse{Text: plain.Text}
	}

	res := &Result{
		Text:      vr.Text,
		Language:  vr.Language,
		Duration:  vr.Duration,
		Latency:   time.Since(start),
		Metrics:   resp.Metrics,
		RateLimit: firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests") + "/" + firstNonEmpty(resp.Header, "x-ratelimit-limit-requests"),
	}

	if len(vr.Segments) > 0 {
		var logProbSum float64
		for _, seg := range vr.Segments {
			if seg.NoSpeechProb > res.NoSpeechProb {
				res.NoSpeechProb = seg.NoSpeechProb
			}
			if seg.CompressionRatio > res.CompressionRatio {
				res.CompressionRatio = seg.CompressionRatio
			}
			logProbSum += seg.AvgLogProb
			res.Scores = append(res.Scores, SegmentScore(seg))
		}
		res.AvgLogProb = logProbSum / float64(len(vr.Segments))
	}
	return res, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy. Client
// errors mean this segment can never succeed; everything else is the engine's
// problem and worth a fallback attempt.
func classifyStatus(name string, code int, body []byte) error {
	detail := string(body)
	if len(detail) > 200 {
		detail = detail[:200]
	}
	switch {
	case code == http.StatusBadRequest,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnsupportedMediaType,
		code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s returned %d: %s", ErrRejected, name, code, detail)
	default:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, name, code, detail)
	}
}

// classifyTransportError treats every transport failure as engine
// unavailability except an explicit caller cancellation.
func classifyTransportError(name string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
}
