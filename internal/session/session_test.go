package session

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nadzzz/jarvis/internal/capture"
	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/gateway"
	"github.com/nadzzz/jarvis/internal/listen"
	"github.com/nadzzz/jarvis/internal/store"
	"github.com/nadzzz/jarvis/internal/tts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second

// --- fakes ---

type fakeRecognizer struct {
	mu     sync.Mutex
	starts int
	stops  int
	events chan capture.Event
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *fakeRecognizer) Events() <-chan capture.Event { return r.events }

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *fakeRecognizer) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// fakeSpeaker reports every utterance on said. While hold is set, Speak
// blocks until release is called.
type fakeSpeaker struct {
	said chan tts.Utterance

	mu   sync.Mutex
	hold chan struct{}
}

func (s *fakeSpeaker) Voices() []tts.Voice { return nil }

func (s *fakeSpeaker) Speak(ctx context.Context, u tts.Utterance) error {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()

	s.said <- u
	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSpeaker) Close() error { return nil }

func (s *fakeSpeaker) holdOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
}

func (s *fakeSpeaker) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

type fakeDisplay struct {
	mu          sync.Mutex
	greetings   []string
	transcripts []string
	interims    []string
	answers     []string
	statuses    []Status
}

func (d *fakeDisplay) Greeting(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.greetings = append(d.greetings, text)
}

func (d *fakeDisplay) Transcript(text string, final bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if final {
		d.transcripts = append(d.transcripts, text)
	} else {
		d.interims = append(d.interims, text)
	}
}

func (d *fakeDisplay) Answer(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.answers = append(d.answers, text)
}

func (d *fakeDisplay) Status(s Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, s)
}

func (d *fakeDisplay) snapshot() fakeDisplay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fakeDisplay{
		greetings:   append([]string(nil), d.greetings...),
		transcripts: append([]string(nil), d.transcripts...),
		interims:    append([]string(nil), d.interims...),
		answers:     append([]string(nil), d.answers...),
		statuses:    append([]Status(nil), d.statuses...),
	}
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeOpener) Open(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeOpener) opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type askFunc func(ctx context.Context, query string) (gateway.Answer, error)

func (f askFunc) Ask(ctx context.Context, query string) (gateway.Answer, error) { return f(ctx, query) }

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) listen.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs the first pending timer scheduled for d.
func (c *fakeClock) fire(d time.Duration) bool {
	c.mu.Lock()
	var t *fakeTimer
	for _, cand := range c.timers {
		if cand.d == d && !cand.fired && !cand.stopped {
			t = cand
			break
		}
	}
	if t != nil {
		t.fired = true
	}
	c.mu.Unlock()

	if t == nil {
		return false
	}
	t.f()
	return true
}

// fixedSource always yields the same value.
type fixedSource uint64

func (s fixedSource) Uint64() uint64 { return uint64(s) }

// --- harness ---

type harness struct {
	t       *testing.T
	o       *Orchestrator
	rec     *fakeRecognizer
	speaker *fakeSpeaker
	disp    *fakeDisplay
	opener  *fakeOpener
	clock   *fakeClock
	mem     *store.Memory
	errc    chan error
	cancel  context.CancelFunc
}

type option func(*Config, *harness)

func withAsker(f askFunc) option {
	return func(c *Config, _ *harness) { c.Asker = f }
}

func withRand(src rand.Source) option {
	return func(c *Config, _ *harness) { c.Rand = rand.New(src) }
}

func withStored(key, value string) option {
	return func(_ *Config, h *harness) { _ = h.mem.Save(context.Background(), key, value) }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		rec:     &fakeRecognizer{events: make(chan capture.Event, 16)},
		speaker: &fakeSpeaker{said: make(chan tts.Utterance, 32)},
		disp:    &fakeDisplay{},
		opener:  &fakeOpener{},
		clock:   &fakeClock{},
		mem:     store.NewMemory(),
		errc:    make(chan error, 1),
	}
	cfg := Config{
		Recognizer: h.rec,
		Speaker:    h.speaker,
		Display:    h.disp,
		Opener:     h.opener,
		Clock:      h.clock,
		Now:        func() time.Time { return time.Date(2024, time.January, 2, 15, 4, 5, 0, time.Local) },
		Rand:       rand.New(rand.NewPCG(1, 2)),
		Cooldown:   500 * time.Millisecond,
		Defaults:   config.AssistantConfig{UserName: "Sir", Personality: "jarvis", Language: "en"},
		Asker: askFunc(func(context.Context, string) (gateway.Answer, error) {
			return gateway.Answer{}, errors.New("no gateway in this test")
		}),
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	cfg.Store = store.NewKV(h.mem, nil)

	o, err := New(cfg)
	require.NoError(t, err)
	h.o = o
	return h
}

// run starts the loop and waits until the startup speech is over.
func (h *harness) run() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.o.Run(ctx) }()
	h.t.Cleanup(h.stop)

	h.next()
	h.quiet()
	h.drain()
}

func (h *harness) stop() {
	h.speaker.release()
	h.cancel()
	select {
	case <-h.errc:
	case <-time.After(waitFor):
		h.t.Error("session did not stop")
	}
}

// next returns the next spoken text.
func (h *harness) next() string {
	h.t.Helper()
	select {
	case u := <-h.speaker.said:
		return u.Text
	case <-time.After(waitFor):
		h.t.Fatal("nothing was spoken")
		return ""
	}
}

// quiet waits until no speech output runs.
func (h *harness) quiet() {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return !h.o.Snapshot().Speaking }, waitFor, time.Millisecond)
}

func (h *harness) drain() {
	for {
		select {
		case <-h.speaker.said:
		default:
			return
		}
	}
}

// utter runs one single-shot capture session for text and returns the reply.
func (h *harness) utter(text string) string {
	h.t.Helper()
	h.send(text)
	reply := h.next()
	h.quiet()
	return reply
}

// send runs one single-shot capture session for text.
func (h *harness) send(text string) {
	h.t.Helper()
	before := h.rec.startCount()
	h.o.Listen()
	require.Eventually(h.t, func() bool { return h.rec.startCount() > before }, waitFor, time.Millisecond)
	h.rec.events <- capture.Event{Type: capture.EventStart}
	h.rec.events <- capture.Event{Type: capture.EventResult, Transcript: text, Final: true}
}

func (h *harness) fire(d time.Duration) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.clock.fire(d) }, waitFor, time.Millisecond)
}

// --- tests ---

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStartup_Greeting(t *testing.T) {
	h := newHarness(t)
	h.speaker.holdOutput()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.o.Run(ctx) }()
	t.Cleanup(h.stop)

	assert.Equal(t, "Initializing, Sir.", h.next())
	require.Eventually(t, func() bool { return len(h.disp.snapshot().greetings) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, "Good Afternoon, Sir. How may I assist you?", h.disp.snapshot().greetings[0])

	s := h.o.Snapshot()
	assert.True(t, s.Speaking)
	assert.Equal(t, "Sir", s.UserName)
	assert.Equal(t, "jarvis", s.Personality)
	assert.Equal(t, "dark", s.Theme)
	assert.Equal(t, listen.Idle, s.Listen)
	assert.Empty(t, h.speaker.said, "the greeting is dropped while the first line is spoken")

	h.speaker.release()
	h.quiet()
}

func TestStartup_RestoresPersistedSettings(t *testing.T) {
	h := newHarness(t,
		withStored(store.KeyUserName, "Pepper"),
		withStored(store.KeyPersonality, "tony"),
		withStored(store.KeyShoppingList, `["milk"]`),
		withStored(store.KeyTheme, "light"),
		withRand(fixedSource(0)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.o.Run(ctx) }()
	t.Cleanup(h.stop)

	assert.Equal(t, "Well, Initializing, Pepper.", h.next())

	s := h.o.Snapshot()
	assert.Equal(t, "Pepper", s.UserName)
	assert.Equal(t, "tony", s.Personality)
	assert.Equal(t, []string{"milk"}, s.ShoppingList)
	assert.Equal(t, "light", s.Theme)
	assert.NotEmpty(t, s.ID)
}

func TestStartup_UnknownPersonalityFallsBack(t *testing.T) {
	h := newHarness(t, withStored(store.KeyPersonality, "pirate"))
	h.run()
	assert.Equal(t, "jarvis", h.o.Snapshot().Personality)
}

func TestStartup_ContinuousRestored(t *testing.T) {
	h := newHarness(t, withStored(store.KeyContinuous, "true"))
	h.run()

	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, listen.Listening, h.o.Snapshot().Listen)
}

func TestCommands(t *testing.T) {
	tests := []struct {
		say  string
		want string
		url  string
	}{
		{say: "hello jarvis", want: "Hello, Sir. How can I help you?"},
		{say: "what is your name", want: "I am Jarvis, your AI assistant. But you can call me whatever you like."},
		{say: "open youtube", want: "Opening YouTube...", url: "https://youtube.com"},
		{say: "what is the time", want: "The current time is 3:04:05 PM"},
		{say: "what's the date today", want: "Today's date is January 2, 2024"},
		{say: "set a timer for abc minutes", want: "Sorry, I didn't understand the duration. Please specify a positive number of minutes."},
		{say: "add to my shopping list", want: "What would you like to add?"},
		{say: "search for golang generics", want: "Searching for golang generics.", url: "https://www.google.com/search?q=golang+generics"},
		{say: "volume up", want: "Increasing volume."},
		{say: "volume down", want: "Decreasing volume."},
		{say: "list commands", want: "Here are a few commands you can use: hello, open youtube, tell me a joke, what is the time, add to my shopping list, and search for..."},
	}
	for _, tt := range tests {
		t.Run(tt.say, func(t *testing.T) {
			h := newHarness(t)
			h.run()

			assert.Equal(t, tt.want, h.utter(tt.say))
			if tt.url != "" {
				assert.Equal(t, []string{tt.url}, h.opener.opened())
			} else {
				assert.Empty(t, h.opener.opened())
			}
			assert.Equal(t, []string{tt.say}, h.disp.snapshot().transcripts)
		})
	}
}

func TestCommand_Joke(t *testing.T) {
	h := newHarness(t)
	h.run()
	assert.Contains(t, Jokes, h.utter("tell me a joke"))
}

func TestCommand_TranscriptNormalized(t *testing.T) {
	h := newHarness(t)
	h.run()

	assert.Equal(t, "Increasing volume.", h.utter("  Volume UP "))
	assert.Equal(t, []string{"volume up"}, h.disp.snapshot().transcripts)
}

func TestInterimTranscriptIsDisplayOnly(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.o.Listen()
	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)
	h.rec.events <- capture.Event{Type: capture.EventStart}
	h.rec.events <- capture.Event{Type: capture.EventResult, Transcript: "tell me a"}

	require.Eventually(t, func() bool { return len(h.disp.snapshot().interims) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, "tell me a", h.disp.snapshot().interims[0])
	assert.Empty(t, h.disp.snapshot().transcripts)
	assert.Empty(t, h.speaker.said)
	assert.Equal(t, listen.Listening, h.o.Snapshot().Listen)
}

func TestShoppingList(t *testing.T) {
	h := newHarness(t)
	h.run()

	assert.Equal(t, "Your shopping list is empty.", h.utter("show my shopping list"))
	assert.Equal(t, "milk has been added to your shopping list.", h.utter("add to my shopping list milk"))
	assert.Equal(t, "eggs has been added to your shopping list.", h.utter("add to my shopping list eggs"))
	assert.Equal(t, "Your shopping list contains: milk, eggs.", h.utter("show my shopping list"))

	stored, _, _ := h.mem.Load(context.Background(), store.KeyShoppingList)
	assert.Equal(t, `["milk","eggs"]`, stored)

	assert.Equal(t, "Your shopping list has been cleared.", h.utter("clear my shopping list"))
	assert.Equal(t, "Your shopping list is empty.", h.utter("show my shopping list"))

	stored, _, _ = h.mem.Load(context.Background(), store.KeyShoppingList)
	assert.Equal(t, `[]`, stored)
}

func TestTimer(t *testing.T) {
	h := newHarness(t)
	h.run()

	assert.Equal(t, "Setting a timer for 5 minutes.", h.utter("set a timer for 5 minutes"))

	h.fire(5 * time.Minute)
	assert.Equal(t, "The timer for 5 minutes is up, Sir!", h.next())
}

func TestAskExternal(t *testing.T) {
	var got []string
	var mu sync.Mutex
	h := newHarness(t, withAsker(func(_ context.Context, q string) (gateway.Answer, error) {
		mu.Lock()
		got = append(got, q)
		mu.Unlock()
		return gateway.Answer{Spoken: "Go is a programming language made at Google.", Display: "Go is a..."}, nil
	}))
	h.run()

	assert.Equal(t, "Go is a programming language made at Google.", h.utter("What is Go"))
	assert.Equal(t, []string{"Go is a..."}, h.disp.snapshot().answers)
	mu.Lock()
	assert.Equal(t, []string{"what is go"}, got)
	mu.Unlock()

	statuses := h.disp.snapshot().statuses
	assert.Contains(t, statuses, StatusThinking)
	assert.Equal(t, StatusIdle, statuses[len(statuses)-1])
	assert.False(t, h.o.Snapshot().PendingQuery)
}

func TestAskExternal_Fallback(t *testing.T) {
	h := newHarness(t, withAsker(func(_ context.Context, q string) (gateway.Answer, error) {
		return gateway.Answer{Spoken: "answer to " + q, Display: q}, nil
	}))
	h.run()

	assert.Equal(t, "answer to sing me a song", h.utter("sing me a song"))
}

func TestAskExternal_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", gateway.ErrTimeout, "Sorry, the response took too long. Please try again."},
		{"http", &gateway.HTTPError{Status: 500}, "Sorry, I could not fetch the response. Please try again."},
		{"network", gateway.ErrNetwork, "Sorry, I could not fetch the response. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withAsker(func(context.Context, string) (gateway.Answer, error) {
				return gateway.Answer{}, tt.err
			}))
			h.run()

			assert.Equal(t, tt.want, h.utter("who is tony stark"))
			assert.Empty(t, h.disp.snapshot().answers)
		})
	}
}

func TestAskExternal_OnlyNewestAnswerCounts(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, withAsker(func(ctx context.Context, q string) (gateway.Answer, error) {
		if q == "what is slow" {
			select {
			case <-release:
				return gateway.Answer{Spoken: "stale"}, nil
			case <-ctx.Done():
				return gateway.Answer{}, ctx.Err()
			}
		}
		return gateway.Answer{Spoken: "fresh", Display: "fresh"}, nil
	}))
	h.run()

	h.send("what is slow")
	require.Eventually(t, func() bool { return h.o.Snapshot().PendingQuery }, waitFor, time.Millisecond)

	assert.Equal(t, "fresh", h.utter("what is fast"))

	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.speaker.said)
	assert.Equal(t, []string{"fresh"}, h.disp.snapshot().answers)
}

func TestCaptureErrors(t *testing.T) {
	tests := []struct {
		kind capture.ErrorKind
		want string
	}{
		{capture.ErrNetwork, "Network error. Please check your connection."},
		{capture.ErrOther, "Error in speech recognition. Please try again."},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t)
			h.run()

			h.o.Listen()
			require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)
			h.rec.events <- capture.Event{Type: capture.EventError, Err: tt.kind}

			assert.Equal(t, tt.want, h.next())
			assert.Equal(t, listen.Idle, h.o.Snapshot().Listen)
		})
	}
}

func TestCaptureError_NoSpeechIsSilent(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.o.Listen()
	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)
	h.rec.events <- capture.Event{Type: capture.EventError, Err: capture.ErrNoSpeech}

	require.Eventually(t, func() bool { return h.o.Snapshot().Listen == listen.Idle }, waitFor, time.Millisecond)
	assert.Empty(t, h.speaker.said)

	assert.Equal(t, "Increasing volume.", h.utter("volume up"), "listening recovers")
}

func TestListen_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.o.Listen()
	h.o.Listen()
	h.o.Listen()
	h.quiet()

	assert.Equal(t, 1, h.rec.startCount())
	assert.True(t, h.o.Snapshot().Listening)
}

func TestListen_DeferredWhileSpeaking(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.speaker.holdOutput()
	h.o.SetUserName("Pepper")
	assert.Equal(t, "Hello, Pepper. I will remember your name.", h.next())

	h.o.Listen()
	s := h.o.Snapshot()
	assert.True(t, s.Speaking)
	assert.Equal(t, listen.Idle, s.Listen)
	assert.Zero(t, h.rec.startCount())

	h.speaker.release()
	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)
}

func TestSettings(t *testing.T) {
	h := newHarness(t, withRand(fixedSource(0)))
	h.run()

	h.o.SetUserName("")
	assert.Equal(t, "Hello, Sir. I will remember your name.", h.next())
	h.quiet()

	h.o.SetUserName("Pepper")
	assert.Equal(t, "Hello, Pepper. I will remember your name.", h.next())
	h.quiet()

	h.o.SetPersonality("pirate")
	h.o.SetPersonality("tony")
	assert.Equal(t, "Well, Switching to Tony Stark mode.", h.next())
	h.quiet()

	h.o.ToggleTheme()

	s := h.o.Snapshot()
	assert.Equal(t, "Pepper", s.UserName)
	assert.Equal(t, "tony", s.Personality)
	assert.Equal(t, "light", s.Theme)

	ctx := context.Background()
	name, _, _ := h.mem.Load(ctx, store.KeyUserName)
	personality, _, _ := h.mem.Load(ctx, store.KeyPersonality)
	theme, _, _ := h.mem.Load(ctx, store.KeyTheme)
	assert.Equal(t, "Pepper", name)
	assert.Equal(t, "tony", personality)
	assert.Equal(t, "light", theme)
}

func TestContinuousMode(t *testing.T) {
	h := newHarness(t)
	h.run()

	h.o.SetContinuous(true)
	assert.Equal(t, "Continuous listening enabled.", h.next())
	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond, "capture starts once speech ends")

	stored, _, _ := h.mem.Load(context.Background(), store.KeyContinuous)
	assert.Equal(t, "true", stored)

	h.rec.events <- capture.Event{Type: capture.EventStart}
	h.rec.events <- capture.Event{Type: capture.EventResult, Transcript: "volume down", Final: true}
	assert.Equal(t, "Decreasing volume.", h.next())
	h.quiet()
	h.rec.events <- capture.Event{Type: capture.EventEnd}

	require.Eventually(t, func() bool { return h.o.Snapshot().Listen == listen.CoolingDown }, waitFor, time.Millisecond)
	h.fire(500 * time.Millisecond)
	require.Eventually(t, func() bool { return h.rec.startCount() == 2 }, waitFor, time.Millisecond)

	h.o.SetContinuous(false)
	assert.Equal(t, "Continuous listening disabled.", h.next())
	require.Eventually(t, func() bool { return h.o.Snapshot().Listen == listen.Idle }, waitFor, time.Millisecond)
	assert.Equal(t, 1, h.rec.stopCount())
}

func TestContinuousMode_DisableDuringCooldown(t *testing.T) {
	h := newHarness(t, withStored(store.KeyContinuous, "true"))
	h.run()
	require.Eventually(t, func() bool { return h.rec.startCount() == 1 }, waitFor, time.Millisecond)

	h.rec.events <- capture.Event{Type: capture.EventEnd}
	require.Eventually(t, func() bool { return h.o.Snapshot().Listen == listen.CoolingDown }, waitFor, time.Millisecond)

	h.o.SetContinuous(false)
	h.next()
	h.quiet()

	assert.False(t, h.clock.fire(500*time.Millisecond), "the restart was cancelled")
	assert.Equal(t, listen.Idle, h.o.Snapshot().Listen)
	assert.Equal(t, 1, h.rec.startCount())
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	h.run()

	assert.Equal(t, "Shutting down. Goodbye.", h.utter("shutdown"))
	h.fire(time.Second)

	select {
	case err := <-h.errc:
		assert.NoError(t, err)
		h.errc <- nil
	case <-time.After(waitFor):
		t.Fatal("session did not shut down")
	}
	assert.Equal(t, State{}, h.o.Snapshot())
}

func TestRun_Twice(t *testing.T) {
	h := newHarness(t)
	h.run()
	assert.Error(t, h.o.Run(context.Background()))
}

func TestFixedSourceQuipIndex(t *testing.T) {
	// Guards the assumption the settings test makes about the quip picked by
	// a zero source.
	assert.Equal(t, 0, rand.New(fixedSource(0)).IntN(4))
	assert.Equal(t, 3, rand.New(fixedSource(math.MaxUint64)).IntN(4))
}
