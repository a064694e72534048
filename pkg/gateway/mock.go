package gateway

import (
	"context"
	"sync"
)

// Mock is a scriptable Gateway for tests. Feed pushes mic frames; played
// audio and expressions are recorded for assertions.
type Mock struct {
	mu          sync.Mutex
	stream      *MicStream
	played      [][]byte
	expressions []Expression
	closed      bool

	// PlayErr, when set, is returned by Play.
	PlayErr error

	// OpenErr, when set, is returned by OpenMicStream.
	OpenErr error
}

// NewMock returns an open mock gateway.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) OpenMicStream(ctx context.Context) (*MicStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.closed {
		return nil, ErrDeviceUnavailable
	}
	m.stream = newMicStream(micStreamDepth)
	go func(s *MicStream) {
		<-ctx.Done()
		s.close()
	}(m.stream)
	return m.stream, nil
}

func (m *Mock) Play(pcm []byte, sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlayErr != nil {
		return m.PlayErr
	}
	if m.closed {
		return ErrDeviceUnavailable
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.played = append(m.played, buf)
	return nil
}

func (m *Mock) SetExpression(expr Expression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDeviceUnavailable
	}
	m.expressions = append(m.expressions, expr)
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.stream != nil {
		m.stream.close()
	}
	return nil
}

// Feed pushes one mic frame into the open stream.
func (m *Mock) Feed(frame []byte) {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	if s != nil {
		s.push(frame)
	}
}

// Played returns the audio buffers played so far.
func (m *Mock) Played() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.played))
	copy(out, m.played)
	return out
}

// Expressions returns the expressions triggered so far.
func (m *Mock) Expressions() []Expression {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Expression, len(m.expressions))
	copy(out, m.expressions)
	return out
}

var _ Gateway = (*Mock)(nil)
