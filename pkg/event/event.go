// Package event defines the immutable session event records relayed to
// viewers. Events are append-only: once emitted they are never mutated, only
// retransmitted. The JSON shape is the viewer wire protocol, so unknown
// fields stay omitempty and viewers must ignore unknown types.
package event

import (
	"encoding/base64"
	"time"
)

// Type identifies the event variant.
type Type string

const (
	// TypeText is a finished text turn from the user or the robot.
	TypeText Type = "text"

	// TypeLocation is a shared map location from a tool call.
	TypeLocation Type = "location"

	// TypeAudioChunk carries a chunk of playback audio for one stream.
	TypeAudioChunk Type = "audio_chunk"

	// TypeTurnComplete marks the end of a model turn.
	TypeTurnComplete Type = "turn_complete"

	// TypeInterrupted marks a barge-in: the user spoke over the robot.
	TypeInterrupted Type = "interrupted"

	// TypeConnectionStatus reports relay or upstream connectivity changes,
	// including viewer-side drops under congestion.
	TypeConnectionStatus Type = "connection_status"
)

// Speaker identifies who produced a text turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerRobot Speaker = "robot"
)

// Floor identifies which party currently holds the conversational turn.
type Floor int

const (
	FloorNone Floor = iota
	FloorUser
	FloorRobot
)

func (f Floor) String() string {
	switch f {
	case FloorUser:
		return "user"
	case FloorRobot:
		return "robot"
	default:
		return "none"
	}
}

// Connection status values used in TypeConnectionStatus events.
const (
	StatusConnected    = "connected"
	StatusReconnecting = "reconnecting"
	StatusLost         = "lost"
	StatusDegraded     = "degraded"
)

// Event is one immutable record of something that happened in a session.
// Fields are a union across variants; unused fields are omitted on the wire.
type Event struct {
	Type Type `json:"type"`

	// Seq is the hub-assigned publish sequence number, used by viewers to
	// detect replay depth on reconnect.
	Seq uint64 `json:"seq,omitempty"`

	// Timestamp is Unix milliseconds at emit time.
	Timestamp int64 `json:"ts,omitempty"`

	// text
	Speaker Speaker `json:"speaker,omitempty"`
	Content string  `json:"content,omitempty"`

	// location
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Query   string `json:"query,omitempty"`

	// audio_chunk
	Audio    string `json:"audio,omitempty"` // base64 PCM
	StreamID string `json:"stream_id,omitempty"`
	AudioSeq int    `json:"audio_seq,omitempty"`

	// connection_status
	Status  string `json:"status,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Dropped int    `json:"dropped,omitempty"`
}

// NewText creates a text turn event.
func NewText(speaker Speaker, content string) Event {
	return Event{
		Type:      TypeText,
		Timestamp: now(),
		Speaker:   speaker,
		Content:   content,
	}
}

// NewLocation creates a location event. If query is empty it is derived from
// name and address so viewers can always run a map lookup.
func NewLocation(name, address, query string) Event {
	if query == "" {
		query = name
		if address != "" {
			query = name + " " + address
		}
	}
	return Event{
		Type:      TypeLocation,
		Timestamp: now(),
		Name:      name,
		Address:   address,
		Query:     query,
	}
}

// NewAudioChunk creates an audio chunk event for the given stream.
func NewAudioChunk(streamID string, seq int, pcm []byte) Event {
	return Event{
		Type:      TypeAudioChunk,
		Timestamp: now(),
		StreamID:  streamID,
		AudioSeq:  seq,
		Audio:     base64.StdEncoding.EncodeToString(pcm),
	}
}

// NewTurnComplete marks the end of a model turn.
func NewTurnComplete() Event {
	return Event{Type: TypeTurnComplete, Timestamp: now()}
}

// NewInterrupted marks a barge-in.
func NewInterrupted() Event {
	return Event{Type: TypeInterrupted, Timestamp: now()}
}

// NewConnectionStatus reports a connectivity change.
func NewConnectionStatus(status, detail string) Event {
	return Event{
		Type:      TypeConnectionStatus,
		Timestamp: now(),
		Status:    status,
		Detail:    detail,
	}
}

// NewDropNotice reports that a congested viewer lost n events.
func NewDropNotice(n int) Event {
	return Event{
		Type:      TypeConnectionStatus,
		Timestamp: now(),
		Status:    StatusDegraded,
		Detail:    "events dropped due to slow viewer",
		Dropped:   n,
	}
}

func now() int64 {
	return time.Now().UnixMilli()
}
