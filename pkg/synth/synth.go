// Package synth converts reply text into raw PCM speech audio. Backends
// implement Synthesizer; Chain provides ordered fallback across them.
package synth

import (
	"context"
	"time"
)

// Profile selects the voice rendition for one request.
type Profile struct {
	// Voice identifies the backend voice (speaker ID or voice ID).
	Voice string

	// Speed scales speaking rate. 1.0 is normal; zero means 1.0.
	Speed float64

	// Style is a backend-specific delivery style, optional.
	Style string
}

// speed returns the effective speaking rate.
func (p Profile) speed() float64 {
	if p.Speed <= 0 {
		return 1.0
	}
	return p.Speed
}

// Result is one synthesized utterance.
type Result struct {
	// Audio is raw little-endian 16-bit mono PCM with no container header.
	Audio []byte

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// CharCount is the length of the synthesized text.
	CharCount int

	// LatencyMs is the wall-clock synthesis time.
	LatencyMs int64
}

// Duration estimates the playback length of the audio.
func (r *Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	samples := len(r.Audio) / 2
	return time.Duration(float64(samples) / float64(r.SampleRate) * float64(time.Second))
}

// Synthesizer renders one utterance of text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, p Profile) (*Result, error)
}
