package relay

import "github.com/cabinworks/go-copilot/pkg/event"

// ring is a fixed-capacity buffer of the most recent events. Publishers only
// append; the (N+1)-th append evicts exactly the oldest entry. Not safe for
// concurrent use; the hub serializes access.
type ring struct {
	buf   []event.Event
	start int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]event.Event, capacity)}
}

// push appends ev, evicting the oldest entry when full.
func (r *ring) push(ev event.Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns the buffered events, oldest first.
func (r *ring) snapshot() []event.Event {
	out := make([]event.Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) cap() int {
	return len(r.buf)
}
