package relay

import (
	"context"
	"sync"

	"github.com/cabinworks/go-copilot/pkg/event"
)

// Viewer represents one downstream observer/controller attached to the hub.
// Each viewer exclusively owns its bounded outbound queue; no state is shared
// between viewers, so a slow viewer degrades alone.
type Viewer struct {
	// ID identifies this connection in logs and control messages.
	ID string

	hub *Hub

	mu           sync.Mutex
	queue        []event.Event
	depth        int
	pendingDrops int
	closed       bool
	lastSeq      uint64

	notify chan struct{}
	done   chan struct{}
}

func newViewer(id string, hub *Hub, depth int) *Viewer {
	return &Viewer{
		ID:     id,
		hub:    hub,
		depth:  depth,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueue appends ev to the outbound queue. When the queue is full the oldest
// entry is dropped and a coalesced drop notice is owed to the viewer; the
// producer never blocks.
func (v *Viewer) enqueue(ev event.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if len(v.queue) >= v.depth {
		copy(v.queue, v.queue[1:])
		v.queue = v.queue[:len(v.queue)-1]
		v.pendingDrops++
		if v.hub != nil {
			v.hub.dropped.Add(1)
		}
	}
	v.queue = append(v.queue, ev)
	v.mu.Unlock()

	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// TryNext pops the next outbound event without blocking. A pending drop
// notice is delivered before the surviving queued events, in place of the
// entries it stands for.
func (v *Viewer) TryNext() (event.Event, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pendingDrops > 0 {
		n := v.pendingDrops
		v.pendingDrops = 0
		return event.NewDropNotice(n), true
	}
	if len(v.queue) == 0 {
		return event.Event{}, false
	}
	ev := v.queue[0]
	v.queue = v.queue[1:]
	v.lastSeq = ev.Seq
	return ev, true
}

// Next blocks until an outbound event is available, the context is cancelled,
// or the viewer is closed.
func (v *Viewer) Next(ctx context.Context) (event.Event, error) {
	for {
		if ev, ok := v.TryNext(); ok {
			return ev, nil
		}
		select {
		case <-v.notify:
		case <-v.done:
			// Drain anything enqueued before close.
			if ev, ok := v.TryNext(); ok {
				return ev, nil
			}
			return event.Event{}, ErrViewerClosed
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

// Ready signals that outbound events may be available. Used by write loops
// to block without polling; always re-check TryNext after a wake-up.
func (v *Viewer) Ready() <-chan struct{} {
	return v.notify
}

// Done is closed when the viewer has been unsubscribed.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// Len returns the number of queued outbound events.
func (v *Viewer) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// LastSeq returns the sequence number of the last event handed out.
func (v *Viewer) LastSeq() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeq
}

// close marks the viewer closed and wakes any blocked reader. Idempotent.
func (v *Viewer) close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	close(v.done)
}
