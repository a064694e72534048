// Package gateway talks to the robot body daemon: mic audio in, speech audio
// and expression cues out.
package gateway

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable means the robot daemon cannot be reached.
var ErrDeviceUnavailable = errors.New("gateway: device unavailable")

// ErrStreamClosed is returned by reads on a closed mic stream.
var ErrStreamClosed = errors.New("gateway: mic stream closed")

// Expression names a face or gesture animation the robot can perform.
type Expression string

const (
	ExpressionNeutral   Expression = "neutral"
	ExpressionHappy     Expression = "happy"
	ExpressionSad       Expression = "sad"
	ExpressionSurprised Expression = "surprised"
	ExpressionThinking  Expression = "thinking"
	ExpressionListening Expression = "listening"
)

// Gateway is the interface to the robot body. Implementations must be safe
// for concurrent use; playback and mic capture run on separate goroutines.
type Gateway interface {
	// OpenMicStream starts mic capture. Only one stream is open at a time;
	// the stream ends when the context is canceled or the daemon drops.
	OpenMicStream(ctx context.Context) (*MicStream, error)

	// Play sends one buffer of 16-bit mono PCM to the robot speaker.
	Play(pcm []byte, sampleRate int) error

	// SetExpression triggers an animation on the robot face.
	SetExpression(expr Expression) error

	// Close releases the daemon connection.
	Close() error
}

// MicStream delivers captured mic frames in arrival order. Frames are raw
// 16-bit mono PCM at 16kHz.
type MicStream struct {
	frames chan []byte
	done   chan struct{}
}

func newMicStream(depth int) *MicStream {
	return &MicStream{
		frames: make(chan []byte, depth),
		done:   make(chan struct{}),
	}
}

// Read blocks for the next mic frame.
func (s *MicStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, ErrStreamClosed
		}
		return frame, nil
	case <-s.done:
		// Drain anything buffered before reporting closure.
		select {
		case frame, ok := <-s.frames:
			if ok {
				return frame, nil
			}
		default:
		}
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// push delivers one frame, dropping it when the consumer lags. Mic audio is
// only useful fresh.
func (s *MicStream) push(frame []byte) {
	select {
	case <-s.done:
	case s.frames <- frame:
	default:
	}
}

func (s *MicStream) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
