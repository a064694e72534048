// Package copilot runs the live conversation session: mic audio up to the
// model, transcript and speech back out, and every visible moment relayed to
// viewers through the hub.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cabinworks/go-copilot/pkg/event"
	"github.com/cabinworks/go-copilot/pkg/gateway"
	"github.com/cabinworks/go-copilot/pkg/live"
	"github.com/cabinworks/go-copilot/pkg/places"
	"github.com/cabinworks/go-copilot/pkg/relay"
	"github.com/cabinworks/go-copilot/pkg/synth"
)

const (
	// synthQueueDepth bounds utterances waiting on the synthesis worker.
	synthQueueDepth = 32

	// stopDrainTimeout bounds each drain phase of a graceful Stop.
	stopDrainTimeout = 10 * time.Second
)

var (
	// ErrAlreadyRunning is returned by Start on a running app.
	ErrAlreadyRunning = errors.New("copilot: session already running")
)

// Config wires the session orchestrator.
type Config struct {
	Hub      *relay.Hub
	Driver   *live.Driver
	Synth    synth.Synthesizer
	Gateway  gateway.Gateway
	Resolver places.Resolver

	// Greeting is spoken once when the session first becomes active. It is
	// not repeated after reconnects.
	Greeting string

	// Voice is the synthesis profile for robot speech.
	Voice synth.Profile

	Logger *slog.Logger
}

// Session is a snapshot of the running conversation.
type Session struct {
	ID        string
	StartedAt time.Time
	Turns     int
	Floor     event.Floor
}

// synthJob is one utterance queued for the synthesis worker. Jobs from an
// abandoned turn carry a stale epoch and are discarded unspoken.
type synthJob struct {
	epoch uint64
	text  string
}

// App orchestrates one conversation session end to end.
type App struct {
	hub      *relay.Hub
	driver   *live.Driver
	synth    synth.Synthesizer
	gateway  gateway.Gateway
	resolver places.Resolver
	greeting string
	voice    synth.Profile
	log      *slog.Logger

	mu      sync.Mutex
	session Session
	greeted bool
	started bool

	// epoch increments on every barge-in and reconnect; queued speech from
	// an older epoch is never played.
	epoch atomic.Uint64

	synthCh chan synthJob
	cancel  context.CancelFunc

	// micCancel stops mic capture ahead of the rest of the teardown.
	micCancel context.CancelFunc

	// flushSynth tells the synthesis worker to finish what is queued and
	// exit; loopDone and synthDone let Stop sequence the drain phases.
	flushSynth chan struct{}
	loopDone   chan struct{}
	synthDone  chan struct{}

	wg sync.WaitGroup
}

// New creates the orchestrator.
func New(cfg Config) (*App, error) {
	if cfg.Hub == nil || cfg.Driver == nil || cfg.Synth == nil || cfg.Gateway == nil {
		return nil, fmt.Errorf("copilot: hub, driver, synth, and gateway are required")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = places.PassThrough{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &App{
		hub:      cfg.Hub,
		driver:   cfg.Driver,
		synth:    cfg.Synth,
		gateway:  cfg.Gateway,
		resolver: cfg.Resolver,
		greeting: cfg.Greeting,
		voice:    cfg.Voice,
		log:      cfg.Logger.With("component", "copilot"),
		synthCh:  make(chan synthJob, synthQueueDepth),
	}, nil
}

// Session returns a snapshot of the running session.
func (a *App) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Start connects upstream and begins the session loops. Blocks until the
// model handshake succeeds or its retry budget is spent.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.started = true
	a.session = Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
	a.mu.Unlock()

	if err := a.driver.Start(); err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		return fmt.Errorf("copilot: start session: %w", err)
	}

	ctx, a.cancel = context.WithCancel(ctx)
	micCtx, micCancel := context.WithCancel(ctx)
	a.micCancel = micCancel
	a.flushSynth = make(chan struct{})
	a.loopDone = make(chan struct{})
	a.synthDone = make(chan struct{})

	a.wg.Add(4)
	go a.eventLoop(ctx)
	go a.synthWorker(ctx)
	go a.controlLoop(ctx)
	go a.micLoop(micCtx)

	a.hub.Publish(event.NewConnectionStatus(event.StatusConnected, "session started"))
	a.greetOnce()

	a.log.Info("session started", "session_id", a.Session().ID)
	return nil
}

// Stop ends the session gracefully: mic capture and the upstream session
// stop first so nothing new is queued, then already-queued speech finishes
// within a bounded drain, then the remaining loops are torn down. Viewers
// see the link go down as the final event.
func (a *App) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.mu.Unlock()

	// Input side first: no new audio upstream, no new model events.
	a.micCancel()
	a.driver.Stop()
	select {
	case <-a.loopDone:
	case <-time.After(stopDrainTimeout):
		a.log.Warn("event loop did not drain before deadline")
	}

	// Flush: utterances queued before the close still get spoken.
	close(a.flushSynth)
	select {
	case <-a.synthDone:
	case <-time.After(stopDrainTimeout):
		a.log.Warn("synthesis drain timed out")
	}

	a.cancel()
	a.wg.Wait()
	a.gateway.Close()
	a.log.Info("session stopped", "turns", a.Session().Turns)
}

// greetOnce speaks the configured greeting the first time the session comes
// up. Reconnects within the same process do not greet again.
func (a *App) greetOnce() {
	a.mu.Lock()
	if a.greeted || a.greeting == "" {
		a.mu.Unlock()
		return
	}
	a.greeted = true
	a.mu.Unlock()

	a.hub.Publish(event.NewText(event.SpeakerRobot, a.greeting))
	a.enqueueSpeech(a.greeting)
}

// eventLoop consumes driver events until the session closes. This is the
// only goroutine that publishes conversation events, which keeps the viewer
// stream in emission order.
func (a *App) eventLoop(ctx context.Context) {
	defer func() {
		close(a.loopDone)
		a.wg.Done()
	}()

	var sentences sentenceBuffer

	for ev := range a.driver.Events() {
		switch ev.Kind {
		case live.KindTranscript:
			a.onTranscript(ev, &sentences)

		case live.KindAudio:
			// Native model audio is unused; speech is re-rendered through
			// the synthesis chain for a consistent voice.

		case live.KindToolCall:
			result := a.dispatchTool(ctx, ev.Call)
			if err := a.driver.SendToolResult(ev.Call.ID, ev.Call.Name, result); err != nil {
				a.log.Warn("tool result not delivered", "tool", ev.Call.Name, "error", err)
			}

		case live.KindInterrupted:
			// Barge-in: fence off queued speech before viewers hear about
			// it, so nothing stale plays after the interrupted event.
			a.epoch.Add(1)
			sentences.reset()
			a.drainSynthQueue()
			a.hub.Publish(event.NewInterrupted())
			a.setFloor(event.FloorUser)

		case live.KindTurnComplete:
			if tail := sentences.flush(); tail != "" {
				a.hub.Publish(event.NewText(event.SpeakerRobot, tail))
				a.enqueueSpeech(tail)
			}
			a.hub.Publish(event.NewTurnComplete())
			a.setFloor(event.FloorNone)
			a.mu.Lock()
			a.session.Turns++
			a.mu.Unlock()

		case live.KindReconnecting:
			a.epoch.Add(1)
			sentences.reset()
			a.drainSynthQueue()
			a.hub.Publish(event.NewConnectionStatus(event.StatusReconnecting, "model link dropped"))
			a.setFloor(event.FloorNone)

		case live.KindResumed:
			a.hub.Publish(event.NewConnectionStatus(event.StatusConnected, "model link restored"))

		case live.KindClosed:
			detail := "session ended"
			if ev.Err != nil {
				detail = ev.Err.Error()
			}
			a.hub.Publish(event.NewConnectionStatus(event.StatusLost, detail))
			return
		}
	}
}

// onTranscript publishes transcript text and queues robot speech sentence by
// sentence.
func (a *App) onTranscript(ev live.Event, sentences *sentenceBuffer) {
	if ev.Text == "" {
		return
	}

	if ev.Role == live.RoleUser {
		a.hub.Publish(event.NewText(event.SpeakerUser, ev.Text))
		a.setFloor(event.FloorUser)
		return
	}

	a.setFloor(event.FloorRobot)
	for _, s := range sentences.feed(ev.Text) {
		a.hub.Publish(event.NewText(event.SpeakerRobot, s))
		a.enqueueSpeech(s)
	}
}

// enqueueSpeech hands one utterance to the synthesis worker, tagged with the
// current epoch. A full queue drops the utterance; text already reached
// viewers.
func (a *App) enqueueSpeech(text string) {
	job := synthJob{epoch: a.epoch.Load(), text: text}
	select {
	case a.synthCh <- job:
	default:
		a.log.Warn("synthesis queue full, dropping utterance", "chars", len(text))
	}
}

// synthWorker renders and plays queued utterances one at a time, preserving
// sentence order. Synthesis failure degrades the session to text only for
// that utterance. A flush signal makes the worker finish what is already
// queued before exiting, so a graceful Stop does not cut speech mid-turn.
func (a *App) synthWorker(ctx context.Context) {
	defer func() {
		close(a.synthDone)
		a.wg.Done()
	}()

	streamSeq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.flushSynth:
			for {
				select {
				case job := <-a.synthCh:
					a.speak(ctx, job, &streamSeq)
				default:
					return
				}
			}
		case job := <-a.synthCh:
			a.speak(ctx, job, &streamSeq)
		}
	}
}

// speak renders one utterance and plays it on the robot. Jobs from a stale
// epoch are dropped, both before and after the synthesis round trip.
func (a *App) speak(ctx context.Context, job synthJob, streamSeq *int) {
	if job.epoch != a.epoch.Load() {
		return
	}

	res, err := a.synth.Synthesize(ctx, job.text, a.voice)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn("synthesis failed, continuing text only", "error", err)
		}
		return
	}

	// Re-check after synthesis latency; a barge-in may have landed.
	if job.epoch != a.epoch.Load() {
		return
	}

	if err := a.gateway.Play(res.Audio, res.SampleRate); err != nil {
		a.log.Warn("playback failed", "error", err)
		return
	}
	*streamSeq++
	a.hub.Publish(event.NewAudioChunk(a.Session().ID, *streamSeq, res.Audio))
}

// micLoop streams captured mic frames upstream, reopening the stream when
// the robot daemon link drops.
func (a *App) micLoop(ctx context.Context) {
	defer a.wg.Done()

	for ctx.Err() == nil {
		stream, err := a.gateway.OpenMicStream(ctx)
		if err != nil {
			a.log.Warn("mic stream unavailable", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for {
			frame, err := stream.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.log.Warn("mic stream ended", "error", err)
				break
			}
			if err := a.driver.SendAudio(frame); err != nil && !errors.Is(err, live.ErrNotActive) {
				a.log.Debug("mic frame not sent", "error", err)
			}
		}
	}
}

// controlLoop applies viewer control requests.
func (a *App) controlLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ctl := <-a.hub.Control():
			switch ctl.Type {
			case "reconnect":
				a.log.Info("viewer requested reconnect", "viewer_id", ctl.ViewerID)
				a.driver.Reconnect()
			default:
				a.log.Debug("ignoring control message", "type", ctl.Type)
			}
		}
	}
}

func (a *App) setFloor(f event.Floor) {
	a.mu.Lock()
	a.session.Floor = f
	a.mu.Unlock()
}

func (a *App) drainSynthQueue() {
	for {
		select {
		case <-a.synthCh:
		default:
			return
		}
	}
}
