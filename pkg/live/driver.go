package live

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the driver lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateReconnecting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures the driver.
type Config struct {
	// Dial opens one handshaken transport.
	Dial Dialer

	// ConnectAttempts bounds the initial handshake retry budget.
	ConnectAttempts int

	// ReconnectAttempts bounds reconnection after a mid-session drop.
	ReconnectAttempts int

	// BackoffBase is the first retry delay; it doubles per attempt up to
	// BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// OutboundDepth is the audio frame buffer toward the model. When full
	// the oldest frame is discarded; mic audio is not replayable.
	OutboundDepth int

	// CloseTimeout bounds how long Stop waits for the event pump to drain.
	CloseTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.ConnectAttempts < 1 {
		c.ConnectAttempts = 10
	}
	if c.ReconnectAttempts < 1 {
		c.ReconnectAttempts = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.OutboundDepth < 1 {
		c.OutboundDepth = 64
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Driver owns exactly one duplex session with the conversational model. It
// pushes audio in, delivers model events out in emission order, and hides
// transport churn behind a bounded reconnect policy. The inbound and
// outbound paths run on independent goroutines so neither can stall the
// other.
type Driver struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	stopping  bool

	events   chan Event
	outbound chan []byte
	stop     chan struct{}
	done     chan struct{}

	stopOnce sync.Once
}

// NewDriver creates a driver in the idle state.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("live: Dial is required")
	}
	cfg.withDefaults()
	return &Driver{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "live.driver"),
		state:    StateIdle,
		events:   make(chan Event, 256),
		outbound: make(chan []byte, cfg.OutboundDepth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Events returns the model event stream. The channel carries a terminal
// KindClosed event and is then closed.
func (d *Driver) Events() <-chan Event {
	return d.events
}

// Start dials the upstream transport, retrying within the configured budget,
// and begins pumping events. Returns ErrHandshakeFailed (wrapped) after
// budget exhaustion; the driver is then idle again and Start may be retried.
func (d *Driver) Start() error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.state = StateConnecting
	d.mu.Unlock()

	t, err := d.dialWithBudget(d.cfg.ConnectAttempts)
	if err != nil {
		d.mu.Lock()
		d.state = StateIdle
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	d.mu.Lock()
	d.transport = t
	d.state = StateActive
	d.mu.Unlock()

	go d.pumpEvents()
	go d.pumpOutbound()

	d.log.Info("session active")
	return nil
}

// SendAudio pushes one outbound mic frame. Frames are discarded silently
// while reconnecting (audio is not replayable); pushing on an idle or closed
// driver returns ErrNotActive. Never blocks: under backpressure the oldest
// buffered frame is dropped.
func (d *Driver) SendAudio(pcm []byte) error {
	d.mu.Lock()
	state := d.state
	d.mu.Unlock()

	switch state {
	case StateActive:
	case StateReconnecting, StateClosing:
		return nil
	default:
		return ErrNotActive
	}

	for {
		select {
		case d.outbound <- pcm:
			return nil
		default:
			select {
			case <-d.outbound: // shed the oldest frame
			default:
			}
		}
	}
}

// SendToolResult returns a tool call result to the model.
func (d *Driver) SendToolResult(callID, name, result string) error {
	d.mu.Lock()
	t := d.transport
	state := d.state
	d.mu.Unlock()

	if state != StateActive || t == nil {
		return ErrNotActive
	}
	return t.SendToolResult(callID, name, result)
}

// Reconnect forces the current transport down, triggering the normal
// drop-and-reconnect path. Used for viewer-originated reconnect requests.
func (d *Driver) Reconnect() {
	d.mu.Lock()
	t := d.transport
	state := d.state
	d.mu.Unlock()

	if state == StateActive && t != nil {
		t.Close()
	}
}

// Stop gracefully shuts the session down: the transport is released and the
// event pump drains within a bounded wait. Idempotent.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		if d.state == StateIdle {
			d.state = StateClosed
			d.mu.Unlock()
			close(d.stop)
			d.emit(Event{Kind: KindClosed})
			close(d.events)
			close(d.done)
			return
		}
		d.stopping = true
		d.state = StateClosing
		t := d.transport
		d.mu.Unlock()

		close(d.stop)
		if t != nil {
			t.Close()
		}

		select {
		case <-d.done:
		case <-time.After(d.cfg.CloseTimeout):
			d.log.Warn("event pump did not drain before deadline")
		}
	})
}

// pumpEvents forwards transport events to the consumer and drives the
// reconnect state machine when a transport dies.
func (d *Driver) pumpEvents() {
	defer close(d.done)

	for {
		d.mu.Lock()
		t := d.transport
		d.mu.Unlock()

		for ev := range t.Events() {
			d.emit(ev)
		}

		d.mu.Lock()
		stopping := d.stopping
		d.mu.Unlock()

		if stopping {
			d.finish(nil)
			return
		}

		cause := t.Err()
		d.log.Warn("transport dropped", "error", cause)

		d.mu.Lock()
		d.state = StateReconnecting
		d.transport = nil
		d.mu.Unlock()
		d.emit(Event{Kind: KindReconnecting, Err: cause})

		// In-flight audio is not replayable across a drop.
		d.drainOutbound()

		nt, err := d.dialWithBudget(d.cfg.ReconnectAttempts)
		if err != nil {
			d.mu.Lock()
			stopping = d.stopping
			d.mu.Unlock()
			if stopping {
				d.finish(nil)
			} else {
				d.finish(fmt.Errorf("%w: %v", ErrSessionLost, err))
			}
			return
		}

		d.mu.Lock()
		if d.stopping {
			d.mu.Unlock()
			nt.Close()
			d.finish(nil)
			return
		}
		d.transport = nt
		d.state = StateActive
		d.mu.Unlock()

		d.log.Info("session resumed on fresh stream")
		d.emit(Event{Kind: KindResumed})
	}
}

// pumpOutbound drains buffered mic frames into the current transport.
func (d *Driver) pumpOutbound() {
	for {
		select {
		case <-d.stop:
			return
		case pcm := <-d.outbound:
			d.mu.Lock()
			t := d.transport
			d.mu.Unlock()
			if t == nil {
				continue
			}
			if err := t.SendAudio(pcm); err != nil {
				d.log.Debug("outbound audio failed", "error", err)
			}
		}
	}
}

// dialWithBudget retries the dialer with capped exponential backoff until it
// succeeds, the budget is spent, or the driver is stopped.
func (d *Driver) dialWithBudget(attempts int) (Transport, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		d.mu.Lock()
		stopping := d.stopping
		d.mu.Unlock()
		if stopping {
			return nil, ErrClosed
		}

		t, err := d.cfg.Dial()
		if err == nil {
			return t, nil
		}
		lastErr = &ConnectionError{Reason: "dial", Attempt: i, Cause: err}
		d.log.Warn("connect attempt failed", "attempt", i, "max", attempts, "error", err)

		if i == attempts {
			break
		}
		select {
		case <-time.After(d.backoff(i)):
		case <-d.stop:
			return nil, ErrClosed
		}
	}
	return nil, fmt.Errorf("budget exhausted after %d attempts: %w", attempts, lastErr)
}

// backoff returns the delay before attempt n+1.
func (d *Driver) backoff(n int) time.Duration {
	delay := d.cfg.BackoffBase << (n - 1)
	if delay > d.cfg.BackoffCap || delay <= 0 {
		delay = d.cfg.BackoffCap
	}
	return delay
}

func (d *Driver) finish(err error) {
	d.mu.Lock()
	d.state = StateClosed
	d.transport = nil
	d.mu.Unlock()

	d.emit(Event{Kind: KindClosed, Err: err})
	close(d.events)
	if err != nil {
		d.log.Error("session closed", "error", err)
	} else {
		d.log.Info("session closed")
	}
}

func (d *Driver) emit(ev Event) {
	d.events <- ev
}

func (d *Driver) drainOutbound() {
	for {
		select {
		case <-d.outbound:
		default:
			return
		}
	}
}
