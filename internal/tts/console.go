package tts

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Console is a Speaker that prints utterances instead of playing audio.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console speaker writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Voices implements Speaker. The console has only its default voice.
func (c *Console) Voices() []Voice { return nil }

// Speak implements Speaker.
func (c *Console) Speak(ctx context.Context, u Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	voice := "default"
	if u.Voice != nil {
		voice = u.Voice.Name
	}
	if _, err := fmt.Fprintf(c.w, "(%s, rate %.1f, pitch %.1f) %s\n", voice, u.Rate, u.Pitch, u.Text); err != nil {
		return fmt.Errorf("console speak: %w", err)
	}
	return nil
}

// Close implements Speaker.
func (c *Console) Close() error { return nil }
