// Package console provides a terminal front end for the assistant: a
// line-based Recognizer standing in for a microphone and a Display that
// writes transcripts, answers and status changes to a writer.
//
// Each line read while a capture session is running is one utterance:
//
//	what is the time      final transcript
//	~what is th           interim transcript (display only)
//	<empty line>          no speech detected
//	!network              simulated recognizer failure (network|other)
//	/command args         control input, delivered on Controls
//
// A plain line typed while no session is running is held back and a "/talk"
// control is emitted instead; the held line becomes the utterance of the
// next session, which makes the console behave like push-to-talk.
package console

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/nadzzz/jarvis/internal/capture"
)

var (
	// ErrAlreadyStarted is returned by Start while a session is running.
	ErrAlreadyStarted = errors.New("console: recognition already started")

	// ErrClosed is returned by Start once input is exhausted or Close was called.
	ErrClosed = errors.New("console: recognizer closed")
)

// Recognizer implements capture.Recognizer over line-oriented text input.
type Recognizer struct {
	events   chan capture.Event
	controls chan string
	startCh  chan struct{}
	stopCh   chan struct{}
	lines    chan string
	done     chan struct{}
	eof      chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	once    sync.Once
}

// NewRecognizer starts reading lines from in. Reading stops at EOF.
func NewRecognizer(in io.Reader) *Recognizer {
	r := &Recognizer{
		events:   make(chan capture.Event, 16),
		controls: make(chan string, 4),
		startCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}, 1),
		lines:    make(chan string),
		done:     make(chan struct{}),
		eof:      make(chan struct{}),
	}
	go r.read(in)
	go r.loop()
	return r
}

// Start implements capture.Recognizer.
func (r *Recognizer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true
	r.startCh <- struct{}{}
	return nil
}

// Stop implements capture.Recognizer.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	select {
	case r.stopCh <- struct{}{}:
	default:
	}
}

// Events implements capture.Recognizer.
func (r *Recognizer) Events() <-chan capture.Event { return r.events }

// Controls delivers "/command" lines verbatim.
func (r *Recognizer) Controls() <-chan string { return r.controls }

// EOF is closed when the input is exhausted.
func (r *Recognizer) EOF() <-chan struct{} { return r.eof }

// Close stops the event loop. Pending reads on the input are abandoned.
func (r *Recognizer) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
	return nil
}

func (r *Recognizer) read(in io.Reader) {
	defer close(r.lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case r.lines <- sc.Text():
		case <-r.done:
			return
		}
	}
}

func (r *Recognizer) loop() {
	var (
		active  bool
		pending string
		lines   = r.lines
	)
	end := func() {
		r.mu.Lock()
		r.started = false
		select {
		case <-r.stopCh:
		default:
		}
		r.mu.Unlock()
		active = false
		r.emit(capture.Event{Type: capture.EventEnd})
	}

	for {
		select {
		case <-r.done:
			return

		case <-r.startCh:
			active = true
			r.emit(capture.Event{Type: capture.EventStart})
			if pending != "" {
				line := pending
				pending = ""
				if r.handleLine(line) {
					end()
				}
			}

		case <-r.stopCh:
			if !active {
				// Stopped before the start was picked up.
				select {
				case <-r.startCh:
					r.emit(capture.Event{Type: capture.EventStart})
				default:
					continue
				}
			}
			end()

		case line, ok := <-lines:
			if !ok {
				lines = nil
				r.mu.Lock()
				r.closed = true
				r.mu.Unlock()
				close(r.eof)
				if active {
					end()
				}
				continue
			}
			switch {
			case strings.HasPrefix(strings.TrimSpace(line), "/"):
				r.control(strings.TrimSpace(line))
			case !active:
				if strings.TrimSpace(line) != "" {
					pending = line
					r.control("/talk")
				}
			case r.handleLine(line):
				end()
			}
		}
	}
}

// handleLine emits the events for one input line and reports whether the
// utterance is complete.
func (r *Recognizer) handleLine(line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		r.emit(capture.Event{Type: capture.EventError, Err: capture.ErrNoSpeech})
	case strings.HasPrefix(text, "~"):
		r.emit(capture.Event{Type: capture.EventResult, Transcript: strings.TrimSpace(text[1:])})
		return false
	case strings.HasPrefix(text, "!"):
		kind := capture.ErrOther
		if strings.TrimSpace(text[1:]) == string(capture.ErrNetwork) {
			kind = capture.ErrNetwork
		}
		r.emit(capture.Event{Type: capture.EventError, Err: kind})
	default:
		r.emit(capture.Event{Type: capture.EventResult, Transcript: text, Final: true})
	}
	return true
}

func (r *Recognizer) control(line string) {
	select {
	case r.controls <- line:
	case <-r.done:
	}
}

func (r *Recognizer) emit(ev capture.Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}
