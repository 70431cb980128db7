// Package navigate opens URLs for the OpenSite and Search actions.
package navigate

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/browser"
)

// Opener opens a URL in a new browsing context.
type Opener interface {
	Open(url string) error
}

// Browser opens URLs with the platform's default handler.
type Browser struct{}

// Open implements Opener.
func (Browser) Open(url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	slog.Debug("browser opened", "url", url)
	return nil
}

// Printer writes URLs to w instead of opening them, for headless hosts.
type Printer struct {
	mu sync.Mutex
	W  io.Writer
}

// Open implements Opener.
func (p *Printer) Open(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.W, "-> %s\n", url)
	return err
}
