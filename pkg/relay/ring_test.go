package relay

import (
	"fmt"
	"testing"

	"github.com/cabinworks/go-copilot/pkg/event"
)

func textEv(i int) event.Event {
	return event.NewText(event.SpeakerRobot, fmt.Sprintf("turn %d", i))
}

func TestRingKeepsAllUntilCapacity(t *testing.T) {
	r := newRing(4)

	for i := 0; i < 4; i++ {
		r.push(textEv(i))
	}

	got := r.snapshot()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, ev := range got {
		if ev.Content != fmt.Sprintf("turn %d", i) {
			t.Errorf("snapshot[%d] = %q", i, ev.Content)
		}
	}
}

func TestRingEvictsExactlyOldest(t *testing.T) {
	r := newRing(4)

	for i := 0; i < 4; i++ {
		r.push(textEv(i))
	}
	// The (N+1)-th push evicts exactly the oldest entry.
	r.push(textEv(4))

	got := r.snapshot()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Content != "turn 1" {
		t.Errorf("oldest = %q, want turn 1", got[0].Content)
	}
	if got[3].Content != "turn 4" {
		t.Errorf("newest = %q, want turn 4", got[3].Content)
	}
}

func TestRingWrapAround(t *testing.T) {
	r := newRing(3)

	for i := 0; i < 10; i++ {
		r.push(textEv(i))
	}

	got := r.snapshot()
	want := []string{"turn 7", "turn 8", "turn 9"}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, got[i].Content, want[i])
		}
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := newRing(0)
	if r.cap() != 1 {
		t.Errorf("cap = %d, want 1", r.cap())
	}
	r.push(textEv(0))
	r.push(textEv(1))
	if r.len() != 1 {
		t.Errorf("len = %d, want 1", r.len())
	}
}
