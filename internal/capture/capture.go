// Package capture defines the speech-recognition capability consumed by the
// listening state machine.
//
// A Recognizer owns the microphone (or any other transcript source). The
// assistant only starts and stops it and reacts to the events it emits; it
// never performs recognition itself.
package capture

// EventType identifies a recognizer event.
type EventType int

const (
	// EventStart is emitted once capture is actually running.
	EventStart EventType = iota

	// EventResult carries an interim or final transcript.
	EventResult

	// EventError reports a recognition failure. An EventEnd may follow.
	EventError

	// EventEnd is emitted when the capture session is over.
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// ErrorKind classifies recognition failures.
type ErrorKind string

const (
	// ErrNoSpeech means nothing was heard; it is not reported to the user.
	ErrNoSpeech ErrorKind = "no-speech"

	// ErrNetwork means the recognizer lost its connection.
	ErrNetwork ErrorKind = "network"

	// ErrOther covers every other failure.
	ErrOther ErrorKind = "other"
)

// Transient reports whether the error should be swallowed silently.
func (k ErrorKind) Transient() bool { return k == ErrNoSpeech }

// Event is a single notification from a Recognizer.
type Event struct {
	Type EventType

	// Transcript and Final are set for EventResult.
	Transcript string
	Final      bool

	// Err is set for EventError.
	Err ErrorKind
}

// Recognizer is the speech-capture capability.
type Recognizer interface {
	// Start begins a capture session. Calling Start while a session is
	// already running is an error; callers are expected to guard it.
	Start() error

	// Stop ends the current capture session, if any. An EventEnd follows.
	Stop()

	// Events delivers recognizer notifications in order.
	Events() <-chan Event
}
