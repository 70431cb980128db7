// Package session runs the assistant: it wires speech capture through the
// listening state machine and the classifier to action execution and voice
// output, and owns the session state.
//
// All state lives on one event loop goroutine started by Run. Recognizer
// events, timer callbacks, gateway replies, speech completion and the
// exported operations are all turned into closures executed on that loop, so
// every handler sees and leaves the state consistent without locking.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/jarvis/internal/capture"
	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/gateway"
	"github.com/nadzzz/jarvis/internal/listen"
	"github.com/nadzzz/jarvis/internal/navigate"
	"github.com/nadzzz/jarvis/internal/store"
	"github.com/nadzzz/jarvis/internal/tts"
	"github.com/nadzzz/jarvis/internal/voice"
)

// Status is the indicator shown on the display.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusThinking  Status = "thinking"
)

// Display is the on-screen surface.
type Display interface {
	// Greeting shows the time-of-day greeting.
	Greeting(text string)

	// Transcript shows recognized text; interim text may be replaced later.
	Transcript(text string, final bool)

	// Answer shows the (truncated) gateway answer.
	Answer(text string)

	// Status updates the listening/thinking indicator.
	Status(s Status)
}

// Asker answers knowledge questions. *gateway.Client implements it.
type Asker interface {
	Ask(ctx context.Context, query string) (gateway.Answer, error)
}

// State is a snapshot of the session.
type State struct {
	ID           string
	UserName     string
	Personality  string
	Continuous   bool
	Theme        string
	ShoppingList []string
	Listen       listen.State
	Listening    bool
	Speaking     bool
	PendingQuery bool
}

// Config configures an Orchestrator.
type Config struct {
	Recognizer capture.Recognizer
	Speaker    tts.Speaker
	Display    Display
	Asker      Asker
	Store      *store.KV

	// Opener defaults to navigate.Browser.
	Opener navigate.Opener

	// Clock defaults to listen.SystemClock; Now defaults to time.Now.
	Clock listen.Clock
	Now   func() time.Time

	// Rand drives jokes and personality filters. Nil seeds from the clock.
	Rand *rand.Rand

	Cooldown time.Duration

	// Defaults apply to settings that were never persisted.
	Defaults config.AssistantConfig

	Logger *slog.Logger
}

// Orchestrator is the session event loop.
type Orchestrator struct {
	id     string
	log    *slog.Logger
	rec    capture.Recognizer
	disp   Display
	asker  Asker
	kv     *store.KV
	opener navigate.Opener
	clock  listen.Clock
	now    func() time.Time
	rng    *rand.Rand

	voice   *voice.Controller
	machine *listen.Machine

	posts   chan func()
	done    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup // gateway calls

	// Loop-owned state.
	ctx               context.Context
	userName          string
	personality       string
	continuous        bool
	theme             string
	shopping          []string
	askSeq            uint64
	pending           bool
	listenAfterSpeech bool
	timers            map[uint64]listen.Timer
	timerSeq          uint64
	stop              bool
}

// New creates an Orchestrator and loads the persisted settings.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Recognizer == nil:
		return nil, fmt.Errorf("recognizer is nil")
	case cfg.Speaker == nil:
		return nil, fmt.Errorf("speaker is nil")
	case cfg.Display == nil:
		return nil, fmt.Errorf("display is nil")
	case cfg.Asker == nil:
		return nil, fmt.Errorf("asker is nil")
	case cfg.Store == nil:
		return nil, fmt.Errorf("store is nil")
	}

	id := uuid.NewString()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session_id", id)

	o := &Orchestrator{
		id:     id,
		log:    log,
		rec:    cfg.Recognizer,
		disp:   cfg.Display,
		asker:  cfg.Asker,
		kv:     cfg.Store,
		opener: cfg.Opener,
		now:    cfg.Now,
		rng:    cfg.Rand,
		posts:  make(chan func(), 64),
		done:   make(chan struct{}),
		timers: make(map[uint64]listen.Timer),
	}
	if o.opener == nil {
		o.opener = navigate.Browser{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.rng == nil {
		seed := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = listen.SystemClock
	}
	o.clock = loopClock{inner: clock, post: o.post}

	o.voice = voice.NewController(voice.Config{
		Speaker:  cfg.Speaker,
		Language: cfg.Defaults.Language,
		Rand:     o.rng,
		OnDone:   func(error) { o.post(o.speechDone) },
		Logger:   log,
	})

	machine, err := listen.New(listen.Config{
		Recognizer: cfg.Recognizer,
		Clock:      o.clock,
		Cooldown:   cfg.Cooldown,
		Busy:       o.voice.Speaking,
		Handlers: listen.Handlers{
			Interim:     func(text string) { o.disp.Transcript(text, false) },
			Final:       o.handleFinal,
			Error:       o.handleCaptureError,
			StateChange: func(_, _ listen.State) { o.refreshStatus() },
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating listening state machine: %w", err)
	}
	o.machine = machine

	o.load(cfg.Defaults)
	return o, nil
}

func (o *Orchestrator) load(def config.AssistantConfig) {
	if def.UserName == "" {
		def.UserName = defaultUserName
	}
	if def.Personality == "" {
		def.Personality = voice.DefaultKey
	}

	o.userName = o.kv.Get(store.KeyUserName, def.UserName)
	o.personality = o.kv.Get(store.KeyPersonality, def.Personality)
	if _, ok := voice.Lookup(o.personality); !ok {
		o.log.Warn("unknown personality, using default", "personality", o.personality)
		o.personality = voice.DefaultKey
	}
	o.continuous = o.kv.GetBool(store.KeyContinuous, def.Continuous)
	o.theme = o.kv.Get(store.KeyTheme, themeDark)
	o.shopping = o.kv.GetList(store.KeyShoppingList)
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Run greets the user and processes events until ctx is cancelled or a
// shutdown command completes. It may be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	o.ctx = ctx
	defer o.shutdown(cancel)

	o.log.Info("session started", "user", o.userName, "personality", o.personality, "continuous", o.continuous)

	o.greet()
	if o.continuous {
		o.machine.SetContinuous(true)
	}
	o.refreshStatus()

	events := o.rec.Events()
	for {
		select {
		case <-ctx.Done():
			o.log.Info("session cancelled")
			return nil

		case ev, ok := <-events:
			if !ok {
				o.log.Info("recognizer closed")
				return nil
			}
			o.machine.HandleEvent(ev)

		case f := <-o.posts:
			f()
		}

		if o.stop {
			o.log.Info("session shut down")
			return nil
		}
	}
}

func (o *Orchestrator) shutdown(cancel context.CancelFunc) {
	cancel()
	o.machine.Close()
	if o.machine.State() == listen.Listening {
		o.rec.Stop()
	}
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	close(o.done)
	o.voice.Close()
	o.wg.Wait()
}

// Done is closed when Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// post schedules f on the event loop. It reports false once the loop is gone.
func (o *Orchestrator) post(f func()) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.posts <- f:
		return true
	case <-o.done:
		return false
	}
}

// Listen starts a single capture session. A request made while speaking is
// honored once speech output ends.
func (o *Orchestrator) Listen() { o.post(o.listenNow) }

// SetUserName changes and persists the user's name. Empty means "Sir".
func (o *Orchestrator) SetUserName(name string) {
	o.post(func() {
		if name == "" {
			name = defaultUserName
		}
		o.userName = name
		o.kv.Set(store.KeyUserName, name)
		o.say(fmt.Sprintf("Hello, %s. I will remember your name.", name))
	})
}

// SetPersonality switches and persists the personality. Unknown keys are
// ignored.
func (o *Orchestrator) SetPersonality(key string) {
	o.post(func() {
		p, ok := voice.Lookup(key)
		if !ok {
			o.log.Warn("ignoring unknown personality", "personality", key)
			return
		}
		o.personality = p.Key
		o.kv.Set(store.KeyPersonality, p.Key)
		o.say(fmt.Sprintf("Switching to %s mode.", p.Name))
	})
}

// SetContinuous turns continuous listening on or off and persists it.
func (o *Orchestrator) SetContinuous(on bool) {
	o.post(func() {
		o.continuous = on
		o.kv.SetBool(store.KeyContinuous, on)
		if on {
			o.say("Continuous listening enabled.")
		} else {
			o.say("Continuous listening disabled.")
			o.listenAfterSpeech = false
		}
		o.machine.SetContinuous(on)
	})
}

// ToggleTheme flips between the dark and light theme and persists it.
func (o *Orchestrator) ToggleTheme() {
	o.post(func() {
		if o.theme == themeLight {
			o.theme = themeDark
		} else {
			o.theme = themeLight
		}
		o.kv.Set(store.KeyTheme, o.theme)
		o.log.Debug("theme changed", "theme", o.theme)
	})
}

// Snapshot returns the current state. It returns the zero State once the
// loop has stopped.
func (o *Orchestrator) Snapshot() State {
	ch := make(chan State, 1)
	if !o.post(func() { ch <- o.snapshot() }) {
		return State{}
	}
	select {
	case s := <-ch:
		return s
	case <-o.done:
		return State{}
	}
}

func (o *Orchestrator) snapshot() State {
	list := make([]string, len(o.shopping))
	copy(list, o.shopping)
	return State{
		ID:           o.id,
		UserName:     o.userName,
		Personality:  o.personality,
		Continuous:   o.continuous,
		Theme:        o.theme,
		ShoppingList: list,
		Listen:       o.machine.State(),
		Listening:    o.machine.State() == listen.Listening,
		Speaking:     o.voice.Speaking(),
		PendingQuery: o.pending,
	}
}

func (o *Orchestrator) listenNow() {
	err := o.machine.Listen()
	switch {
	case err == nil:
	case errors.Is(err, listen.ErrBusy):
		o.log.Debug("listen deferred until speech ends")
		o.listenAfterSpeech = true
	case errors.Is(err, listen.ErrNotIdle):
		o.log.Debug("listen ignored", "state", o.machine.State())
	default:
		o.log.Warn("listen failed", "error", err)
	}
}

func (o *Orchestrator) speechDone() {
	if o.voice.Speaking() {
		return
	}
	o.machine.SpeechDone()
	if o.listenAfterSpeech {
		o.listenAfterSpeech = false
		o.listenNow()
	}
}

// say speaks text with the active personality. It is dropped while another
// output is running.
func (o *Orchestrator) say(text string) {
	p, _ := voice.Lookup(o.personality)
	if !o.voice.Speak(text, p) {
		o.log.Debug("response not spoken", "text", text)
	}
}

func (o *Orchestrator) refreshStatus() {
	switch {
	case o.pending:
		o.disp.Status(StatusThinking)
	case o.machine.State() == listen.Listening:
		o.disp.Status(StatusListening)
	default:
		o.disp.Status(StatusIdle)
	}
}

// after runs f on the loop once d has elapsed, unless the session ends first.
func (o *Orchestrator) after(d time.Duration, f func()) {
	o.timerSeq++
	id := o.timerSeq
	o.timers[id] = o.clock.AfterFunc(d, func() {
		delete(o.timers, id)
		f()
	})
}

// loopClock delivers timer callbacks on the event loop.
type loopClock struct {
	inner listen.Clock
	post  func(func()) bool
}

func (c loopClock) AfterFunc(d time.Duration, f func()) listen.Timer {
	return c.inner.AfterFunc(d, func() { c.post(f) })
}
