package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies one WebSocket message on the daemon link.
type MessageType string

const (
	// Robot daemon to session.
	TypeMic MessageType = "mic"

	// Session to robot daemon.
	TypeSpeak   MessageType = "speak"
	TypeEmotion MessageType = "emotion"

	// Bidirectional health checks.
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the wrapper for all daemon link messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a payload with the current timestamp.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal message data: %w", err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the payload into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// MicData is one captured mic frame.
type MicData struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"` // base64 PCM
}

// SpeakData is one buffer of speech audio to play.
type SpeakData struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"` // base64 PCM
}

// EmotionData triggers an expression animation.
type EmotionData struct {
	Name string `json:"name"`
}
