// Package tts defines the speech output capability.
//
// A Speaker turns a configured utterance into audible output. The assistant
// chooses the voice, rate and pitch; the Speaker only renders them.
package tts

import "context"

// Voice describes one voice offered by a Speaker.
type Voice struct {
	// Name is the backend's voice identifier (e.g. "en_US-lessac-medium").
	Name string

	// Lang is a BCP-47 tag or ISO-639-1 prefix (e.g. "en-US", "en").
	Lang string
}

// Utterance is a fully configured speech request.
type Utterance struct {
	Text string

	// Voice selects a voice; nil uses the Speaker's default.
	Voice *Voice

	// Rate and Pitch are relative (1.0 = normal).
	Rate  float64
	Pitch float64

	// Volume ranges from 0 to 1.
	Volume float64
}

// Speaker renders speech.
type Speaker interface {
	// Voices lists the voices the Speaker can use.
	Voices() []Voice

	// Speak renders the utterance and blocks until output has finished.
	// A nil error is the end-of-output signal; a non-nil error means output
	// failed or was cancelled.
	Speak(ctx context.Context, u Utterance) error

	// Close releases any resources held by the speaker.
	Close() error
}
