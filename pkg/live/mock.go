package live

import "sync"

// MockTransport is a scriptable Transport for tests. Emit feeds events to the
// consumer; Fail simulates a remote drop. Outbound audio and tool results are
// recorded for assertions.
type MockTransport struct {
	mu          sync.Mutex
	events      chan Event
	termErr     error
	closed      bool
	audio       [][]byte
	toolResults []MockToolResult

	// SendAudioErr, when set, is returned by SendAudio.
	SendAudioErr error
}

// MockToolResult is one recorded SendToolResult call.
type MockToolResult struct {
	CallID string
	Name   string
	Result string
}

// NewMockTransport returns an open mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		events: make(chan Event, 64),
	}
}

// Emit delivers one event to the consumer.
func (m *MockTransport) Emit(ev Event) {
	m.events <- ev
}

// Fail simulates the remote side dropping the connection.
func (m *MockTransport) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.termErr = err
	close(m.events)
}

func (m *MockTransport) Events() <-chan Event { return m.events }

func (m *MockTransport) SendAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendAudioErr != nil {
		return m.SendAudioErr
	}
	if m.closed {
		return ErrClosed
	}
	m.audio = append(m.audio, pcm)
	return nil
}

func (m *MockTransport) SendToolResult(callID, name, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.toolResults = append(m.toolResults, MockToolResult{CallID: callID, Name: name, Result: result})
	return nil
}

func (m *MockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.termErr
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

// AudioFrames returns the outbound frames recorded so far.
func (m *MockTransport) AudioFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.audio))
	copy(out, m.audio)
	return out
}

// ToolResults returns the recorded tool results.
func (m *MockTransport) ToolResults() []MockToolResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockToolResult, len(m.toolResults))
	copy(out, m.toolResults)
	return out
}

// MockDialer scripts a sequence of dial outcomes. Each call pops the next
// outcome; when the script is exhausted it keeps returning the last one.
type MockDialer struct {
	mu       sync.Mutex
	script   []func() (Transport, error)
	dials    int
	lastFunc func() (Transport, error)
}

// NewMockDialer builds a dialer from a script of outcomes.
func NewMockDialer(script ...func() (Transport, error)) *MockDialer {
	return &MockDialer{script: script}
}

// Dial pops the next scripted outcome.
func (d *MockDialer) Dial() (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.script) > 0 {
		d.lastFunc = d.script[0]
		d.script = d.script[1:]
	}
	if d.lastFunc == nil {
		return NewMockTransport(), nil
	}
	return d.lastFunc()
}

// Dials reports how many times Dial was called.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
