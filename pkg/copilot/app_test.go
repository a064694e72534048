package copilot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cabinworks/go-copilot/pkg/event"
	"github.com/cabinworks/go-copilot/pkg/gateway"
	"github.com/cabinworks/go-copilot/pkg/live"
	"github.com/cabinworks/go-copilot/pkg/places"
	"github.com/cabinworks/go-copilot/pkg/relay"
	"github.com/cabinworks/go-copilot/pkg/synth"
)

// fakeResolver returns a fixed result set.
type fakeResolver struct {
	results []places.Place
	err     error
}

func (f *fakeResolver) Search(_ context.Context, query string) ([]places.Place, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// blockingSynth holds every request until released, so tests can land a
// barge-in while synthesis is in flight.
type blockingSynth struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{release: make(chan struct{})}
}

func (b *blockingSynth) Synthesize(ctx context.Context, text string, p synth.Profile) (*synth.Result, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &synth.Result{Audio: []byte{1, 0}, SampleRate: 24000}, nil
}

// slowSynth takes a fixed time per request, long enough for a Stop to land
// while an utterance is still queued or in flight.
type slowSynth struct {
	delay time.Duration
}

func (s slowSynth) Synthesize(ctx context.Context, _ string, _ synth.Profile) (*synth.Result, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &synth.Result{Audio: []byte{1, 0}, SampleRate: 24000}, nil
}

type fixture struct {
	app       *App
	hub       *relay.Hub
	gw        *gateway.Mock
	transport *live.MockTransport
	dialer    *live.MockDialer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	transport := live.NewMockTransport()
	second := live.NewMockTransport()
	dialer := live.NewMockDialer(
		func() (live.Transport, error) { return transport, nil },
		func() (live.Transport, error) { return second, nil },
	)
	driver, err := live.NewDriver(live.Config{
		Dial:        dialer.Dial,
		BackoffBase: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Hub == nil {
		cfg.Hub = relay.New(relay.Config{HistorySize: 128, QueueDepth: 128})
	}
	if cfg.Synth == nil {
		cfg.Synth = synth.NewMock()
	}
	if cfg.Gateway == nil {
		cfg.Gateway = gateway.NewMock()
	}
	cfg.Driver = driver

	app, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(app.Stop)

	return &fixture{
		app:       app,
		hub:       cfg.Hub,
		gw:        cfg.Gateway.(*gateway.Mock),
		transport: transport,
		dialer:    dialer,
	}
}

// waitFor polls until the condition holds or the test deadline hits.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// historyTypes filters hub history down to the given event type.
func historyOf(h *relay.Hub, typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range h.History() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestTranscriptFlowPublishesInOrder(t *testing.T) {
	f := newFixture(t, Config{})

	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleUser, Text: "コンビニに行きたい"})
	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "わかりました。近くを探しま"})
	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "すね。"})
	f.transport.Emit(live.Event{Kind: live.KindTurnComplete})

	waitFor(t, "turn complete event", func() bool {
		return len(historyOf(f.hub, event.TypeTurnComplete)) == 1
	})

	texts := historyOf(f.hub, event.TypeText)
	if len(texts) != 3 {
		t.Fatalf("text events = %d, want 3", len(texts))
	}
	if texts[0].Speaker != event.SpeakerUser {
		t.Errorf("first speaker = %q, want user", texts[0].Speaker)
	}
	if texts[1].Content != "わかりました。" {
		t.Errorf("first robot sentence = %q", texts[1].Content)
	}
	if texts[2].Content != "近くを探しますね。" {
		t.Errorf("second robot sentence = %q", texts[2].Content)
	}

	if f.app.Session().Floor != event.FloorNone {
		t.Errorf("floor after turn complete = %v, want none", f.app.Session().Floor)
	}
	if f.app.Session().Turns != 1 {
		t.Errorf("turns = %d, want 1", f.app.Session().Turns)
	}
}

func TestRobotSpeechIsSynthesizedAndPlayed(t *testing.T) {
	f := newFixture(t, Config{})

	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "はい。"})

	waitFor(t, "playback", func() bool { return len(f.gw.Played()) == 1 })

	if len(historyOf(f.hub, event.TypeAudioChunk)) != 1 {
		t.Errorf("audio chunk events = %d, want 1", len(historyOf(f.hub, event.TypeAudioChunk)))
	}
}

func TestBargeInFencesQueuedSpeech(t *testing.T) {
	bs := newBlockingSynth()
	f := newFixture(t, Config{Synth: bs})

	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "長い説明をします。"})

	waitFor(t, "synthesis to start", func() bool {
		bs.mu.Lock()
		defer bs.mu.Unlock()
		return bs.calls == 1
	})

	// The user speaks over the robot while synthesis is in flight.
	f.transport.Emit(live.Event{Kind: live.KindInterrupted})
	waitFor(t, "interrupted event", func() bool {
		return len(historyOf(f.hub, event.TypeInterrupted)) == 1
	})

	close(bs.release)

	// The completed synthesis belongs to the abandoned turn and must never
	// reach the speaker or the viewers.
	time.Sleep(50 * time.Millisecond)
	if got := len(f.gw.Played()); got != 0 {
		t.Errorf("played %d buffers after barge-in, want 0", got)
	}
	if got := len(historyOf(f.hub, event.TypeAudioChunk)); got != 0 {
		t.Errorf("audio chunks after barge-in = %d, want 0", got)
	}
	if f.app.Session().Floor != event.FloorUser {
		t.Errorf("floor = %v, want user", f.app.Session().Floor)
	}
}

func TestSearchPlacesToolPublishesLocationOnce(t *testing.T) {
	resolver := &fakeResolver{results: []places.Place{
		{Name: "Lawson Shibuya", Address: "1-2-3 Shibuya"},
	}}
	f := newFixture(t, Config{Resolver: resolver})

	f.transport.Emit(live.Event{Kind: live.KindToolCall, Call: &live.ToolCall{
		ID:   "call-1",
		Name: "searchPlaces",
		Args: map[string]any{"query": "nearest convenience store"},
	}})

	waitFor(t, "tool result", func() bool { return len(f.transport.ToolResults()) == 1 })

	locs := historyOf(f.hub, event.TypeLocation)
	if len(locs) != 1 {
		t.Fatalf("location events = %d, want exactly 1", len(locs))
	}
	if locs[0].Name != "Lawson Shibuya" {
		t.Errorf("location name = %q", locs[0].Name)
	}
	if locs[0].Query != "Lawson Shibuya 1-2-3 Shibuya" {
		t.Errorf("derived query = %q", locs[0].Query)
	}

	res := f.transport.ToolResults()[0]
	if res.CallID != "call-1" || res.Name != "searchPlaces" {
		t.Errorf("tool result routing = %+v", res)
	}
}

func TestExpressionToolReachesGateway(t *testing.T) {
	f := newFixture(t, Config{})

	f.transport.Emit(live.Event{Kind: live.KindToolCall, Call: &live.ToolCall{
		ID:   "call-2",
		Name: "expressEmotion",
		Args: map[string]any{"emotion": "happy"},
	}})

	waitFor(t, "expression", func() bool { return len(f.gw.Expressions()) == 1 })

	if f.gw.Expressions()[0] != gateway.ExpressionHappy {
		t.Errorf("expression = %q, want happy", f.gw.Expressions()[0])
	}
	if f.transport.ToolResults()[0].Result != "Action started." {
		t.Errorf("result = %q", f.transport.ToolResults()[0].Result)
	}
}

func TestUnknownToolReportsNotFound(t *testing.T) {
	f := newFixture(t, Config{})

	f.transport.Emit(live.Event{Kind: live.KindToolCall, Call: &live.ToolCall{
		ID:   "call-3",
		Name: "launchMissiles",
	}})

	waitFor(t, "tool result", func() bool { return len(f.transport.ToolResults()) == 1 })

	if f.transport.ToolResults()[0].Result != `Tool "launchMissiles" not found.` {
		t.Errorf("result = %q", f.transport.ToolResults()[0].Result)
	}
}

func TestSynthesisFailureDegradesToTextOnly(t *testing.T) {
	failing := synth.NewMock()
	failing.Err = synth.ErrUnavailable
	f := newFixture(t, Config{Synth: failing})

	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "聞こえますか。"})
	f.transport.Emit(live.Event{Kind: live.KindTurnComplete})

	waitFor(t, "turn complete", func() bool {
		return len(historyOf(f.hub, event.TypeTurnComplete)) == 1
	})

	// Text still reaches viewers; nothing plays.
	if len(historyOf(f.hub, event.TypeText)) != 1 {
		t.Errorf("text events = %d, want 1", len(historyOf(f.hub, event.TypeText)))
	}
	if len(f.gw.Played()) != 0 {
		t.Errorf("played = %d, want 0", len(f.gw.Played()))
	}

	// The session keeps working for later turns.
	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleUser, Text: "still here"})
	waitFor(t, "later turn", func() bool {
		return len(historyOf(f.hub, event.TypeText)) == 2
	})
}

func TestGreetingSpokenOnceNotAfterReconnect(t *testing.T) {
	mock := synth.NewMock()
	f := newFixture(t, Config{Synth: mock, Greeting: "おはようございます。今日はどちらへ？"})

	waitFor(t, "greeting synthesis", func() bool { return len(mock.Calls()) == 1 })
	if mock.Calls()[0] != "おはようございます。今日はどちらへ？" {
		t.Errorf("greeting = %q", mock.Calls()[0])
	}

	// Drop the model link; the driver reconnects on the scripted second
	// transport.
	f.transport.Fail(errors.New("stream reset"))

	waitFor(t, "reconnect status events", func() bool {
		statuses := historyOf(f.hub, event.TypeConnectionStatus)
		for _, ev := range statuses {
			if ev.Detail == "model link restored" {
				return true
			}
		}
		return false
	})

	time.Sleep(50 * time.Millisecond)
	if got := len(mock.Calls()); got != 1 {
		t.Errorf("greeting synthesized %d times, want once", got)
	}
	texts := historyOf(f.hub, event.TypeText)
	if len(texts) != 1 {
		t.Errorf("greeting text events = %d, want 1", len(texts))
	}
}

func TestStopFlushesQueuedSpeech(t *testing.T) {
	f := newFixture(t, Config{Synth: slowSynth{delay: 100 * time.Millisecond}})

	f.transport.Emit(live.Event{Kind: live.KindTranscript, Role: live.RoleModel, Text: "はい。"})
	waitFor(t, "robot text event", func() bool {
		return len(historyOf(f.hub, event.TypeText)) == 1
	})

	// Stop while synthesis is still in flight: the utterance finishes
	// rendering and plays before the session tears down.
	f.app.Stop()

	if got := len(f.gw.Played()); got != 1 {
		t.Fatalf("played %d buffers after Stop, want 1", got)
	}
}

func TestStartIsNotReentrant(t *testing.T) {
	f := newFixture(t, Config{})

	if err := f.app.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestViewerReconnectControl(t *testing.T) {
	f := newFixture(t, Config{})

	v := f.hub.Subscribe()
	defer f.hub.Unsubscribe(v)

	f.hub.SubmitControl(relay.Control{ViewerID: v.ID, Type: "reconnect"})

	// The forced reconnect tears down the first transport and resumes on
	// the second.
	waitFor(t, "reconnect round trip", func() bool { return f.dialer.Dials() == 2 })
}
