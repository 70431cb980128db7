package voice

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadzzz/jarvis/internal/tts"
)

// Config configures a Controller.
type Config struct {
	Speaker tts.Speaker

	// Language is the user's language prefix used for voice selection.
	Language string

	// Rand drives profile filters. Nil uses a randomly seeded source.
	Rand *rand.Rand

	// OnDone is called from the output goroutine after every accepted
	// request finishes, with the speaker's error (nil on success).
	OnDone func(err error)

	Logger *slog.Logger
}

// Controller serializes speech output. A request made while another one is
// in progress is dropped, not queued.
type Controller struct {
	speaker  tts.Speaker
	language string
	onDone   func(err error)
	log      *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	speaking atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	rng := cfg.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		speaker:  cfg.Speaker,
		language: lang,
		onDone:   cfg.OnDone,
		log:      log,
		rng:      rng,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Speaking reports whether an output is in progress.
func (c *Controller) Speaking() bool { return c.speaking.Load() }

// Speak filters text through profile and starts output. It returns false
// without side effects when text is empty, the controller is closed, or
// another output is still running.
func (c *Controller) Speak(text string, profile Profile) bool {
	if text == "" || c.ctx.Err() != nil {
		return false
	}
	if !c.speaking.CompareAndSwap(false, true) {
		c.log.Debug("speech dropped, output in progress", "text_length", len(text))
		return false
	}

	c.mu.Lock()
	filtered := profile.Apply(text, c.rng)
	c.mu.Unlock()

	u := tts.Utterance{
		Text:   filtered,
		Voice:  SelectVoice(c.speaker.Voices(), c.language),
		Rate:   profile.Rate,
		Pitch:  profile.Pitch,
		Volume: 1,
	}

	c.wg.Add(1)
	go c.run(u)
	return true
}

func (c *Controller) run(u tts.Utterance) {
	defer c.wg.Done()

	err := c.speaker.Speak(c.ctx, u)
	c.speaking.Store(false)

	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("speech output failed", "error", err)
	}
	if c.onDone != nil {
		c.onDone(err)
	}
}

// Close cancels any output in progress and waits for it to finish.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
