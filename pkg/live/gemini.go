package live

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is the Gemini Live bidirectional streaming endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native audio dialog model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// inputMimeType is the mic frame format pushed upstream.
	inputMimeType = "audio/pcm;rate=16000"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 120 * time.Second
	keepAlivePeriod  = 30 * time.Second
)

// ToolDecl declares one function the model may call during the session.
type ToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// GeminiConfig configures one Gemini Live connection.
type GeminiConfig struct {
	Endpoint     string
	APIKey       string
	Model        string
	Instructions string
	Tools        []ToolDecl
	Logger       *slog.Logger
}

// GeminiDialer returns a Dialer that opens handshaken Gemini Live transports.
func GeminiDialer(cfg GeminiConfig) Dialer {
	return func() (Transport, error) {
		return DialGemini(cfg)
	}
}

// geminiTransport is one live WebSocket connection speaking the
// BidiGenerateContent protocol.
type geminiTransport struct {
	ws   *websocket.Conn
	wsMu sync.Mutex
	log  *slog.Logger

	events chan Event

	mu       sync.Mutex
	termErr  error
	closed   bool
	stopPing chan struct{}

	closeOnce sync.Once
}

// DialGemini opens a connection, performs the setup handshake, and starts the
// read loop. The returned transport is active; its event channel closes when
// the connection dies.
func DialGemini(cfg GeminiConfig) (Transport, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	url := fmt.Sprintf("%s?key=%s", cfg.Endpoint, cfg.APIKey)
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	t := &geminiTransport{
		ws:       ws,
		log:      cfg.Logger.With("component", "live.gemini"),
		events:   make(chan Event, 64),
		stopPing: make(chan struct{}),
	}

	if err := t.setup(cfg); err != nil {
		ws.Close()
		return nil, err
	}

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go t.readLoop()
	go t.keepAlive()

	return t, nil
}

// setup sends the session configuration and waits for the server to
// acknowledge it. Anything other than setupComplete fails the handshake.
func (t *geminiTransport) setup(cfg GeminiConfig) error {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := map[string]any{
		"model": model,
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
		},
		"outputAudioTranscription": map[string]any{},
		"inputAudioTranscription":  map[string]any{},
	}
	if cfg.Instructions != "" {
		setup["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": cfg.Instructions}},
		}
	}
	if len(cfg.Tools) > 0 {
		setup["tools"] = []map[string]any{
			{"functionDeclarations": cfg.Tools},
		}
	}

	if err := t.writeJSON(map[string]any{"setup": setup}); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}

	t.ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := t.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("await setup ack: %w", err)
	}
	var ack struct {
		SetupComplete *struct{} `json:"setupComplete"`
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.SetupComplete == nil {
		return fmt.Errorf("unexpected setup response: %s", data)
	}
	return nil
}

func (t *geminiTransport) Events() <-chan Event {
	return t.events
}

// SendAudio pushes one mic frame as a realtime input chunk.
func (t *geminiTransport) SendAudio(pcm []byte) error {
	return t.writeJSON(map[string]any{
		"realtimeInput": map[string]any{
			"audio": map[string]any{
				"mimeType": inputMimeType,
				"data":     base64.StdEncoding.EncodeToString(pcm),
			},
		},
	})
}

// SendToolResult answers an outstanding function call.
func (t *geminiTransport) SendToolResult(callID, name, result string) error {
	return t.writeJSON(map[string]any{
		"toolResponse": map[string]any{
			"functionResponses": []map[string]any{
				{
					"id":       callID,
					"name":     name,
					"response": map[string]any{"result": result},
				},
			},
		},
	})
}

func (t *geminiTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.termErr
}

func (t *geminiTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.stopPing)

		t.wsMu.Lock()
		t.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		t.wsMu.Unlock()
		t.ws.Close()
	})
	return nil
}

// serverMessage mirrors the subset of the wire format the session consumes.
type serverMessage struct {
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		TurnComplete bool `json:"turnComplete"`
		Interrupted  bool `json:"interrupted"`
	} `json:"serverContent"`
	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
}

// readLoop translates wire messages into session events until the connection
// dies, then records the terminal error and closes the event channel.
func (t *geminiTransport) readLoop() {
	defer close(t.events)

	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.termErr = err
			}
			t.mu.Unlock()
			return
		}
		t.ws.SetReadDeadline(time.Now().Add(readTimeout))

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.log.Warn("undecodable server message", "error", err)
			continue
		}
		t.dispatch(&msg)
	}
}

// dispatch fans one wire message out as zero or more events, preserving the
// order the server put them in.
func (t *geminiTransport) dispatch(msg *serverMessage) {
	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			t.events <- Event{Kind: KindToolCall, Call: &ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			}}
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		if msg.GoAway != nil {
			t.log.Info("server announced shutdown", "time_left", msg.GoAway.TimeLeft)
		}
		return
	}

	if sc.Interrupted {
		t.events <- Event{Kind: KindInterrupted}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		t.events <- Event{
			Kind: KindTranscript,
			Role: RoleUser,
			Text: sc.InputTranscription.Text,
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		t.events <- Event{
			Kind:  KindTranscript,
			Role:  RoleModel,
			Text:  sc.OutputTranscription.Text,
			Final: sc.TurnComplete,
		}
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					t.log.Warn("bad audio chunk encoding", "error", err)
					continue
				}
				t.events <- Event{Kind: KindAudio, Audio: audio}
			} else if part.Text != "" {
				t.events <- Event{Kind: KindTranscript, Role: RoleModel, Text: part.Text}
			}
		}
	}
	if sc.TurnComplete {
		t.events <- Event{Kind: KindTurnComplete}
	}
}

// keepAlive pings until the transport closes so idle sessions survive
// intermediaries.
func (t *geminiTransport) keepAlive() {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopPing:
			return
		case <-ticker.C:
			t.wsMu.Lock()
			err := t.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
			t.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *geminiTransport) writeJSON(v any) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	t.wsMu.Lock()
	defer t.wsMu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.ws.WriteJSON(v)
}
