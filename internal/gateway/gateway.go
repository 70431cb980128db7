// Package gateway forwards knowledge questions to the answer proxy and
// normalizes its reply for speech and display.
//
// Only one query is in flight per Client. Starting a new one cancels the
// previous one, which then fails with ErrSuperseded.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/jarvis/internal/config"
)

// NoResponse is the answer used when the reply carries no text.
const NoResponse = "No response"

var (
	// ErrTimeout is returned when the reply does not arrive within the budget.
	ErrTimeout = errors.New("gateway: response timed out")

	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("gateway: network failure")

	// ErrSuperseded is returned by a query cancelled by a newer one.
	ErrSuperseded = errors.New("gateway: superseded by a newer query")
)

// HTTPError reports a non-2xx reply.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway: answer service returned status %d", e.Status)
}

// Answer is a cleaned reply.
type Answer struct {
	// Spoken is the full sanitized text.
	Spoken string

	// Display is Spoken truncated for the screen.
	Display string
}

// Client calls the answer proxy.
type Client struct {
	endpoint string
	timeout  time.Duration
	words    int
	client   *http.Client

	mu      sync.Mutex
	seq     uint64
	pending context.CancelCauseFunc
}

// New creates a Client from config.
func New(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	words := cfg.DisplayWords
	if words <= 0 {
		words = 13
	}
	return &Client{
		endpoint: cfg.Endpoint,
		timeout:  timeout,
		words:    words,
		client:   &http.Client{},
	}
}

// Ask posts query and returns the cleaned answer.
func (c *Client) Ask(ctx context.Context, query string) (Answer, error) {
	ctx, cancel := c.begin(ctx)
	defer cancel()

	ctx, stop := context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
	defer stop()

	bodyBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return Answer{}, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return Answer{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("gateway request", "endpoint", c.endpoint, "query_length", len(query))

	resp, err := c.client.Do(req)
	if err != nil {
		return Answer{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Answer{}, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, classify(ctx, err)
	}

	text, err := extractText(respData)
	if err != nil {
		return Answer{}, err
	}

	spoken := Sanitize(text)
	slog.Debug("gateway answer", "text_length", len(spoken))
	return Answer{Spoken: spoken, Display: Truncate(spoken, c.words)}, nil
}

// begin registers a new pending query, cancelling the previous one.
func (c *Client) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	c.mu.Lock()
	if c.pending != nil {
		c.pending(ErrSuperseded)
	}
	c.seq++
	seq := c.seq
	c.pending = cancel
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		if c.seq == seq {
			c.pending = nil
		}
		c.mu.Unlock()
		cancel(nil)
	}
}

// classify maps a transport error onto the gateway taxonomy.
func classify(ctx context.Context, err error) error {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, ErrTimeout):
		return ErrTimeout
	case errors.Is(cause, ErrSuperseded):
		return ErrSuperseded
	case cause != nil:
		return cause
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// extractText pulls candidates[0].content.parts[0].text from the reply.
func extractText(data []byte) (string, error) {
	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("decoding answer: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return NoResponse, nil
	}
	if text := envelope.Candidates[0].Content.Parts[0].Text; text != "" {
		return text, nil
	}
	return NoResponse, nil
}

var (
	newlines   = regexp.MustCompile(`\n+`)
	whitespace = regexp.MustCompile(`\s{2,}`)
	stripped   = []string{"**", "*", `\`, "/", `"`, "“", "”"}
)

// Sanitize removes markdown emphasis, slashes and quotation marks, folds
// newlines and whitespace runs into single spaces, and trims. The steps run
// in that order.
func Sanitize(s string) string {
	for _, tok := range stripped {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = newlines.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate keeps the first n space-separated words of s and appends "..."
// when anything was cut.
func Truncate(s string, n int) string {
	words := strings.Split(s, " ")
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}
