package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	backendElevenLabs    = "elevenlabs"
	elevenLabsBaseURL    = "https://api.elevenlabs.io/v1"
	elevenLabsSampleRate = 24000
)

// ElevenLabsConfig configures the hosted fallback backend.
type ElevenLabsConfig struct {
	APIKey string

	// Model is the synthesis model ID, e.g. eleven_flash_v2_5.
	Model string

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string

	Timeout time.Duration
	Logger  *slog.Logger
}

// ElevenLabs synthesizes speech through the ElevenLabs API, requesting raw
// PCM so output matches the local engine's format.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	log    *slog.Logger
}

// NewElevenLabs creates an ElevenLabs backend.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("synth: elevenlabs API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_flash_v2_5"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Logger.With("component", "synth.elevenlabs"),
	}, nil
}

// Synthesize renders text with the voice named in the profile.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, p Profile) (*Result, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	payload := map[string]any{
		"text":     text,
		"model_id": e.cfg.Model,
	}
	if p.Speed > 0 && p.Speed != 1.0 {
		payload["voice_settings"] = map[string]any{"speed": p.Speed}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(backendElevenLabs, err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_24000", e.cfg.BaseURL, p.Voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(backendElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, backendElevenLabs, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(backendElevenLabs, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	e.log.Debug("synthesized utterance",
		"chars", len([]rune(text)),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.cfg.Model,
	)

	return &Result{
		Audio:      audio,
		SampleRate: elevenLabsSampleRate,
		CharCount:  len([]rune(text)),
		LatencyMs:  latency,
	}, nil
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
	}

	return &APIError{
		Backend:    backendElevenLabs,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

var _ Synthesizer = (*ElevenLabs)(nil)
