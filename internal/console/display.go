package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/nadzzz/jarvis/internal/session"
)

// Display implements session.Display by writing one line per update.
type Display struct {
	mu     sync.Mutex
	w      io.Writer
	status session.Status
}

// NewDisplay creates a display writing to w.
func NewDisplay(w io.Writer) *Display {
	return &Display{w: w, status: session.StatusIdle}
}

// Greeting implements session.Display.
func (d *Display) Greeting(text string) { d.printf("* %s\n", text) }

// Transcript implements session.Display.
func (d *Display) Transcript(text string, final bool) {
	if final {
		d.printf("> %s\n", text)
		return
	}
	d.printf("~ %s\n", text)
}

// Answer implements session.Display.
func (d *Display) Answer(text string) { d.printf("< %s\n", text) }

// Status implements session.Display. Repeated statuses are not printed.
func (d *Display) Status(s session.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s == d.status {
		return
	}
	d.status = s
	fmt.Fprintf(d.w, "[%s]\n", s)
}

func (d *Display) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format, args...)
}
