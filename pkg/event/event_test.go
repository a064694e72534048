package event

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTextWireShape(t *testing.T) {
	ev := NewText(SpeakerRobot, "hello there")

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	json.Unmarshal(data, &m)

	if m["type"] != "text" {
		t.Errorf("type = %v, want text", m["type"])
	}
	if m["speaker"] != "robot" {
		t.Errorf("speaker = %v, want robot", m["speaker"])
	}
	if m["content"] != "hello there" {
		t.Errorf("content = %v", m["content"])
	}
	// Location fields must not leak into text events.
	if _, ok := m["name"]; ok {
		t.Error("text event should not carry name")
	}
	if _, ok := m["query"]; ok {
		t.Error("text event should not carry query")
	}
}

func TestLocationQueryDerivation(t *testing.T) {
	tests := []struct {
		name, address, query string
		want                 string
	}{
		{"Example Cafe", "", "", "Example Cafe"},
		{"Example Cafe", "1-2-3 Chuo", "", "Example Cafe 1-2-3 Chuo"},
		{"Example Cafe", "1-2-3 Chuo", "cafe near me", "cafe near me"},
	}

	for _, tt := range tests {
		ev := NewLocation(tt.name, tt.address, tt.query)
		if ev.Query != tt.want {
			t.Errorf("NewLocation(%q, %q, %q).Query = %q, want %q",
				tt.name, tt.address, tt.query, ev.Query, tt.want)
		}
	}
}

func TestAudioChunkEncoding(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	ev := NewAudioChunk("turn-1", 7, pcm)

	if ev.StreamID != "turn-1" {
		t.Errorf("StreamID = %s", ev.StreamID)
	}
	if ev.AudioSeq != 7 {
		t.Errorf("AudioSeq = %d", ev.AudioSeq)
	}
	if ev.Audio == "" || strings.ContainsAny(ev.Audio, "\x00") {
		t.Errorf("Audio should be base64, got %q", ev.Audio)
	}
}

func TestDropNotice(t *testing.T) {
	ev := NewDropNotice(5)

	if ev.Type != TypeConnectionStatus {
		t.Errorf("Type = %s", ev.Type)
	}
	if ev.Status != StatusDegraded {
		t.Errorf("Status = %s", ev.Status)
	}
	if ev.Dropped != 5 {
		t.Errorf("Dropped = %d", ev.Dropped)
	}
}

func TestUnknownTypeRoundTrip(t *testing.T) {
	// Viewers must ignore unknown types; the relay must still carry them.
	raw := []byte(`{"type":"future_thing","seq":9}`)

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != "future_thing" {
		t.Errorf("Type = %s", ev.Type)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "future_thing") {
		t.Errorf("round trip lost type: %s", data)
	}
}

func TestFloorString(t *testing.T) {
	if FloorNone.String() != "none" || FloorUser.String() != "user" || FloorRobot.String() != "robot" {
		t.Error("Floor.String mismatch")
	}
}
