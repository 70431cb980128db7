// Package listen implements the listening state machine that governs when
// speech capture runs.
//
// The machine has three states. Idle waits for the user (or continuous mode)
// to start capture. Listening means a capture session is active. CoolingDown
// is the short pause between the end of one session and the automatic
// restart of the next one in continuous mode.
//
// A Machine is not safe for concurrent use. Every method, and every callback
// delivered through the Clock, must run on the goroutine that owns it.
package listen

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadzzz/jarvis/internal/capture"
)

// State is a listening state.
type State int

const (
	Idle State = iota
	Listening
	CoolingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case CoolingDown:
		return "cooling_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNotIdle is returned when capture is requested outside Idle.
	ErrNotIdle = errors.New("listen: capture already active")

	// ErrBusy is returned when capture is requested while speech output runs.
	ErrBusy = errors.New("listen: speech output in progress")
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock schedules callbacks with time.AfterFunc. Its callbacks run on
// their own goroutine, so callers owning a Machine normally wrap it.
var SystemClock Clock = systemClock{}

// Handlers receive the machine's output.
type Handlers struct {
	// Interim is called with non-final transcripts; they are display-only.
	Interim func(text string)

	// Final is called once per final transcript.
	Final func(text string)

	// Error is called for reportable capture errors (never for no-speech).
	Error func(kind capture.ErrorKind)

	// StateChange is called after every transition.
	StateChange func(from, to State)
}

// Config configures a Machine.
type Config struct {
	Recognizer capture.Recognizer
	Clock      Clock
	Cooldown   time.Duration

	// Busy reports whether speech output is in progress. Capture is never
	// started while it returns true.
	Busy func() bool

	Handlers Handlers
	Logger   *slog.Logger
}

// Machine is the listening state machine.
type Machine struct {
	rec      capture.Recognizer
	clock    Clock
	cooldown time.Duration
	busy     func() bool
	h        Handlers
	log      *slog.Logger

	state      State
	continuous bool

	// restart is the pending cooldown timer; gen invalidates callbacks of
	// timers that were cancelled after they already fired.
	restart Timer
	gen     uint64

	// queued is set when a restart came due while speech output was running.
	queued bool
}

// New creates a Machine in the Idle state.
func New(cfg Config) (*Machine, error) {
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is nil")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("negative cooldown %s", cfg.Cooldown)
	}
	m := &Machine{
		rec:      cfg.Recognizer,
		clock:    cfg.Clock,
		cooldown: cfg.Cooldown,
		busy:     cfg.Busy,
		h:        cfg.Handlers,
		log:      cfg.Logger,
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	if m.busy == nil {
		m.busy = func() bool { return false }
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Continuous reports whether continuous mode is on.
func (m *Machine) Continuous() bool { return m.continuous }

// Listen starts a single capture session. It is a no-op returning ErrNotIdle
// unless the machine is Idle, and ErrBusy while speech output is running.
func (m *Machine) Listen() error {
	if m.state != Idle {
		return ErrNotIdle
	}
	if m.busy() {
		return ErrBusy
	}
	return m.start()
}

// SetContinuous turns continuous mode on or off. Turning it on starts capture
// when Idle. Turning it off cancels any scheduled restart, stops an active
// session and returns to Idle.
func (m *Machine) SetContinuous(on bool) {
	if on == m.continuous {
		return
	}
	m.continuous = on
	m.log.Debug("continuous mode changed", "continuous", on, "state", m.state)

	if !on {
		m.cancelRestart()
		if m.state == Listening {
			m.rec.Stop()
		}
		m.setState(Idle)
		return
	}

	if m.state == Idle {
		if m.busy() {
			m.queued = true
			m.setState(CoolingDown)
			return
		}
		_ = m.start()
	}
}

// HandleEvent applies a recognizer event.
func (m *Machine) HandleEvent(ev capture.Event) {
	switch ev.Type {
	case capture.EventStart:
		if m.state != Listening {
			m.cancelRestart()
			m.setState(Listening)
		}

	case capture.EventResult:
		if m.state != Listening {
			m.log.Debug("dropping late transcript", "state", m.state)
			return
		}
		text := strings.TrimSpace(ev.Transcript)
		if !ev.Final {
			if m.h.Interim != nil {
				m.h.Interim(text)
			}
			return
		}
		if !m.continuous {
			m.setState(Idle)
			m.rec.Stop()
		}
		if m.h.Final != nil {
			m.h.Final(text)
		}

	case capture.EventError:
		if m.state != Listening {
			return
		}
		if ev.Err.Transient() {
			m.log.Debug("no speech detected")
		} else {
			m.log.Warn("speech recognition error", "kind", ev.Err)
		}
		m.endSession()
		if !ev.Err.Transient() && m.h.Error != nil {
			m.h.Error(ev.Err)
		}

	case capture.EventEnd:
		if m.state == Listening {
			m.endSession()
		}
	}
}

// SpeechDone tells the machine that speech output finished. A restart that
// came due while speaking is started now.
func (m *Machine) SpeechDone() {
	if !m.queued || m.state != CoolingDown {
		return
	}
	m.queued = false
	if !m.continuous {
		m.setState(Idle)
		return
	}
	_ = m.start()
}

// Close cancels any scheduled restart.
func (m *Machine) Close() {
	m.cancelRestart()
}

// endSession leaves Listening: continuous mode schedules a restart, otherwise
// the machine goes Idle.
func (m *Machine) endSession() {
	if m.continuous {
		m.scheduleRestart()
		return
	}
	m.setState(Idle)
}

func (m *Machine) start() error {
	if err := m.rec.Start(); err != nil {
		m.log.Warn("failed to start recognition", "error", err)
		m.setState(Idle)
		return fmt.Errorf("starting recognition: %w", err)
	}
	m.setState(Listening)
	return nil
}

func (m *Machine) scheduleRestart() {
	m.cancelRestart()
	m.setState(CoolingDown)
	gen := m.gen
	m.restart = m.clock.AfterFunc(m.cooldown, func() { m.fire(gen) })
}

func (m *Machine) fire(gen uint64) {
	if gen != m.gen || m.state != CoolingDown {
		return
	}
	m.restart = nil
	if !m.continuous {
		m.setState(Idle)
		return
	}
	if m.busy() {
		m.log.Debug("restart queued behind speech output")
		m.queued = true
		return
	}
	_ = m.start()
}

func (m *Machine) cancelRestart() {
	m.gen++
	m.queued = false
	if m.restart != nil {
		m.restart.Stop()
		m.restart = nil
	}
}

func (m *Machine) setState(s State) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s
	m.log.Debug("listening state changed", "from", from, "to", s)
	if m.h.StateChange != nil {
		m.h.StateChange(from, s)
	}
}
