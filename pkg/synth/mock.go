package synth

import (
	"context"
	"sync"
)

// Mock is a scriptable Synthesizer for tests.
type Mock struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned by every call.
	Err error

	// Audio is returned on success; defaults to a short non-empty buffer.
	Audio []byte

	// Delay in synthesized output is simulated by the caller, not here.
	SampleRate int
}

// NewMock returns a mock that succeeds with placeholder audio.
func NewMock() *Mock {
	return &Mock{
		Audio:      []byte{0, 0, 1, 0, 2, 0, 3, 0},
		SampleRate: 24000,
	}
}

func (m *Mock) Synthesize(ctx context.Context, text string, p Profile) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Result{
		Audio:      m.Audio,
		SampleRate: m.SampleRate,
		CharCount:  len([]rune(text)),
	}, nil
}

// Calls returns the texts synthesized so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ Synthesizer = (*Mock)(nil)
