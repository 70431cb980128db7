package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/nadzzz/jarvis/internal/config"
)

// Upstream produces a generateContent-shaped JSON document for a query.
type Upstream interface {
	Generate(ctx context.Context, query string) ([]byte, error)
	Name() string
}

// StatusError is an upstream failure that carries the status code and body
// the upstream replied with. The server passes both through unchanged.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Gemini forwards queries to the generative language API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini upstream. baseURL overrides the API host and is
// empty in production.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, baseURL string) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is empty")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

// Name returns the upstream identifier.
func (g *Gemini) Name() string { return "gemini" }

// Generate sends query as a single user turn.
func (g *Gemini) Generate(ctx context.Context, query string) ([]byte, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(query), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code > 0 {
			return nil, &StatusError{Code: apiErr.Code, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("gemini: encoding response: %w", err)
	}
	slog.Debug("gemini generation complete", "model", g.model, "bytes", len(data))
	return data, nil
}

// Local forwards queries to a self-hosted model. It speaks the
// OpenAI-compatible chat completions API, or Ollama's /api/generate when the
// endpoint ends with that path, and rewraps the reply in the generateContent
// envelope the assistant expects.
type Local struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewLocal creates a local upstream from config.
func NewLocal(cfg config.LocalLLMConfig) *Local {
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Local{
		endpoint: cfg.Endpoint,
		model:    model,
		client:   &http.Client{},
	}
}

// Name returns the upstream identifier.
func (l *Local) Name() string { return "local" }

// Generate sends query to the local endpoint.
func (l *Local) Generate(ctx context.Context, query string) ([]byte, error) {
	var reqBody map[string]any
	if strings.HasSuffix(l.endpoint, "/api/generate") {
		reqBody = map[string]any{
			"model":  l.model,
			"prompt": query,
			"stream": false,
		}
	} else {
		reqBody = map[string]any{
			"model": l.model,
			"messages": []map[string]string{
				{"role": "user", "content": query},
			},
			"stream": false,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading LLM response: %w", err)
	}

	content := extractContent(respData)
	if content == "" {
		return nil, errors.New("empty response from local LLM")
	}

	slog.Debug("local generation complete", "model", l.model, "length", len(content))
	return json.Marshal(envelope(content))
}

// extractContent pulls the reply text out of a chat completions or Ollama
// generate response.
func extractContent(data []byte) string {
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil {
		return ollamaResp.Response
	}
	return ""
}

// envelope builds the minimal generateContent response carrying text.
func envelope(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}
