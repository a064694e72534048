package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	micStreamDepth  = 64
	micSampleRate   = 16000
	pcmFormat       = "pcm16"
	settingsTimeout = 2 * time.Second
)

// HTTPGateway talks to the robot daemon over its WebSocket link for audio
// and expressions, plus plain HTTP for one-shot settings.
type HTTPGateway struct {
	addr string
	log  *slog.Logger
	http *http.Client

	mu     sync.Mutex
	ws     *websocket.Conn
	wsMu   sync.Mutex
	mic    *MicStream
	closed bool
}

// NewHTTP creates a gateway for the daemon at addr (host:port).
func NewHTTP(addr string, logger *slog.Logger) *HTTPGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGateway{
		addr: addr,
		log:  logger.With("component", "gateway.http"),
		http: &http.Client{Timeout: settingsTimeout},
	}
}

// connect dials the daemon link if it is not already up.
func (g *HTTPGateway) connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrDeviceUnavailable
	}
	if g.ws != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	url := fmt.Sprintf("ws://%s/ws", g.addr)
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	g.ws = ws
	g.log.Info("daemon link up", "addr", g.addr)
	return nil
}

// OpenMicStream dials the daemon and starts forwarding mic frames.
func (g *HTTPGateway) OpenMicStream(ctx context.Context) (*MicStream, error) {
	if err := g.connect(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.mic != nil {
		g.mic.close()
	}
	stream := newMicStream(micStreamDepth)
	g.mic = stream
	ws := g.ws
	g.mu.Unlock()

	go g.readLoop(ctx, ws, stream)
	return stream, nil
}

// readLoop decodes inbound daemon messages and feeds mic frames to the
// stream until the link or the context ends.
func (g *HTTPGateway) readLoop(ctx context.Context, ws *websocket.Conn, stream *MicStream) {
	defer stream.close()

	stop := context.AfterFunc(ctx, func() {
		ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				g.log.Warn("daemon link dropped", "error", err)
			}
			g.mu.Lock()
			if g.ws == ws {
				g.ws = nil
			}
			g.mu.Unlock()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			g.log.Warn("undecodable daemon message", "error", err)
			continue
		}

		switch msg.Type {
		case TypeMic:
			var mic MicData
			if err := msg.ParseData(&mic); err != nil {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(mic.Data)
			if err != nil || len(frame) == 0 {
				continue
			}
			stream.push(frame)
		case TypePing:
			if pong, err := NewMessage(TypePong, nil); err == nil {
				g.writeMessage(ws, pong)
			}
		}
	}
}

// Play ships one PCM buffer to the robot speaker.
func (g *HTTPGateway) Play(pcm []byte, sampleRate int) error {
	g.mu.Lock()
	ws := g.ws
	g.mu.Unlock()
	if ws == nil {
		return ErrDeviceUnavailable
	}

	msg, err := NewMessage(TypeSpeak, SpeakData{
		Format:     pcmFormat,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		return err
	}
	return g.writeMessage(ws, msg)
}

// SetExpression triggers an animation.
func (g *HTTPGateway) SetExpression(expr Expression) error {
	g.mu.Lock()
	ws := g.ws
	g.mu.Unlock()
	if ws == nil {
		return ErrDeviceUnavailable
	}

	msg, err := NewMessage(TypeEmotion, EmotionData{Name: string(expr)})
	if err != nil {
		return err
	}
	return g.writeMessage(ws, msg)
}

// SetVolume sets the robot speaker volume (0-100) over plain HTTP.
func (g *HTTPGateway) SetVolume(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}

	payload := fmt.Sprintf(`{"volume": %d}`, level)
	resp, err := g.http.Post(
		fmt.Sprintf("http://%s/api/volume/set", g.addr),
		"application/json",
		strings.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: volume set: %v", ErrDeviceUnavailable, err)
	}
	resp.Body.Close()
	return nil
}

// Close tears down the daemon link. Idempotent.
func (g *HTTPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	if g.mic != nil {
		g.mic.close()
	}
	if g.ws != nil {
		g.ws.Close()
		g.ws = nil
	}
	return nil
}

func (g *HTTPGateway) writeMessage(ws *websocket.Conn, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	g.wsMu.Lock()
	defer g.wsMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

var _ Gateway = (*HTTPGateway)(nil)
