// Package relay is the broadcast core of copilotd: it fans every session
// event out to every connected viewer and fans viewer control messages back
// in, with connection churn fully decoupled from event production.
package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cabinworks/go-copilot/pkg/event"
)

// ErrViewerClosed is returned by Viewer.Next after the viewer is closed.
var ErrViewerClosed = errors.New("relay: viewer closed")

// Control is a viewer-originated control message. Delivery order is per
// connection; ordering across connections is not guaranteed.
type Control struct {
	ViewerID string          `json:"-"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Config configures the hub.
type Config struct {
	// HistorySize is the recent-history ring capacity.
	HistorySize int

	// QueueDepth is the per-viewer outbound queue capacity.
	QueueDepth int

	Logger *slog.Logger
}

// Hub accepts one upstream event producer and any number of viewers.
// Publishing never blocks: slow viewers lose their own oldest events and
// never slow down the producer or other viewers.
type Hub struct {
	log        *slog.Logger
	queueDepth int

	mu      sync.RWMutex
	viewers map[*Viewer]struct{}
	history *ring
	seq     uint64

	control chan Control

	published      atomic.Uint64
	dropped        atomic.Uint64
	controlDropped atomic.Uint64
}

// New creates a hub with the given history ring and per-viewer queue sizes.
func New(cfg Config) *Hub {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 256
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger.With("component", "relay.hub"),
		queueDepth: cfg.QueueDepth,
		viewers:    make(map[*Viewer]struct{}),
		history:    newRing(cfg.HistorySize),
		control:    make(chan Control, 64),
	}
}

// Publish stamps ev with a sequence number, appends it to the history ring,
// and enqueues it on every open viewer. Returns the stamped event.
func (h *Hub) Publish(ev event.Event) event.Event {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	h.history.push(ev)
	for v := range h.viewers {
		v.enqueue(ev)
	}
	h.mu.Unlock()

	h.published.Add(1)
	return ev
}

// Subscribe creates a viewer, replays the current history ring into its
// queue, and switches it to live fan-out. Replay and registration happen
// atomically so the viewer sees no gap and no duplicate.
func (h *Hub) Subscribe() *Viewer {
	v := newViewer(uuid.NewString(), h, h.queueDepth)

	h.mu.Lock()
	for _, ev := range h.history.snapshot() {
		v.enqueue(ev)
	}
	h.viewers[v] = struct{}{}
	count := len(h.viewers)
	h.mu.Unlock()

	h.log.Info("viewer connected", "viewer", v.ID, "total", count)
	return v
}

// Unsubscribe removes and closes the viewer. Idempotent; safe to call from
// connection-close detection or explicit disconnect.
func (h *Hub) Unsubscribe(v *Viewer) {
	if v == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.viewers[v]
	delete(h.viewers, v)
	count := len(h.viewers)
	h.mu.Unlock()

	v.close()
	if ok {
		h.log.Info("viewer disconnected", "viewer", v.ID, "remaining", count)
	}
}

// Control returns the channel of viewer-originated control messages.
func (h *Hub) Control() <-chan Control {
	return h.control
}

// SubmitControl forwards a control message to the orchestrator. Congested
// control flow is dropped rather than stalling the viewer's read loop.
func (h *Hub) SubmitControl(c Control) {
	select {
	case h.control <- c:
	default:
		h.controlDropped.Add(1)
		h.log.Warn("control channel full, dropping message", "viewer", c.ViewerID, "type", c.Type)
	}
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// HistoryLen returns the number of events currently buffered for replay.
func (h *Hub) HistoryLen() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.history.len()
}

// History returns a copy of the recent-history ring, oldest first.
func (h *Hub) History() []event.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.history.snapshot()
}

// Stats contains hub counters.
type Stats struct {
	Viewers        int    `json:"viewers"`
	Published      uint64 `json:"published"`
	Dropped        uint64 `json:"dropped"`
	ControlDropped uint64 `json:"control_dropped"`
	HistoryLen     int    `json:"history_len"`
}

// GetStats returns a snapshot of hub counters.
func (h *Hub) GetStats() Stats {
	return Stats{
		Viewers:        h.ViewerCount(),
		Published:      h.published.Load(),
		Dropped:        h.dropped.Load(),
		ControlDropped: h.controlDropped.Load(),
		HistoryLen:     h.HistoryLen(),
	}
}
