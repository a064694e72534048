package synth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	backendVoicevox = "voicevox"

	// voicevoxSampleRate is the engine's fixed output rate.
	voicevoxSampleRate = 24000

	// wavHeaderSize is the RIFF header prefix stripped from engine output.
	wavHeaderSize = 44
)

// VoicevoxConfig configures a VOICEVOX engine backend.
type VoicevoxConfig struct {
	// URL is the engine base URL, e.g. http://127.0.0.1:50021.
	URL string

	// ModelName selects the loaded voice model.
	ModelName string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Voicevox synthesizes speech against a local VOICEVOX-compatible engine.
type Voicevox struct {
	cfg    VoicevoxConfig
	client *http.Client
	log    *slog.Logger
}

// NewVoicevox creates a VOICEVOX backend.
func NewVoicevox(cfg VoicevoxConfig) (*Voicevox, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("synth: voicevox URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Voicevox{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Logger.With("component", "synth.voicevox"),
	}, nil
}

// Synthesize renders text through the engine's /voice endpoint and returns
// headerless PCM. The engine speaks length as the inverse of speed.
func (v *Voicevox) Synthesize(ctx context.Context, text string, p Profile) (*Result, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()

	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker_id", p.Voice)
	if v.cfg.ModelName != "" {
		q.Set("model_name", v.cfg.ModelName)
	}
	if p.Style != "" {
		q.Set("style", p.Style)
	}
	q.Set("length", strconv.FormatFloat(1.0/p.speed(), 'f', 2, 64))

	reqURL := fmt.Sprintf("%s/voice?%s", v.cfg.URL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, WrapError(backendVoicevox, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, backendVoicevox, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			Backend:    backendVoicevox,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(backendVoicevox, fmt.Errorf("read response: %w", err))
	}
	if len(wav) <= wavHeaderSize {
		return nil, WrapError(backendVoicevox, fmt.Errorf("response too short for audio: %d bytes", len(wav)))
	}

	latency := time.Since(start).Milliseconds()
	v.log.Debug("synthesized utterance",
		"chars", len([]rune(text)),
		"bytes", len(wav)-wavHeaderSize,
		"latency_ms", latency,
	)

	return &Result{
		Audio:      wav[wavHeaderSize:],
		SampleRate: voicevoxSampleRate,
		CharCount:  len([]rune(text)),
		LatencyMs:  latency,
	}, nil
}

var _ Synthesizer = (*Voicevox)(nil)
