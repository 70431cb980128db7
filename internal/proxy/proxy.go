// Package proxy implements the answer service the assistant consults for
// free-form questions.
//
// It accepts a plain JSON query over HTTP, forwards it to the configured
// language model upstream and relays the generateContent-shaped response
// untouched. Upstream credentials never leave this process.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/jarvis/internal/config"
)

// maxBodyBytes bounds the request body.
const maxBodyBytes = 64 << 10

// Request is the body of POST /gemini.
type Request struct {
	Query string `json:"query" example:"what is the tallest mountain"`
}

// ErrorResponse is returned for failures that do not originate upstream.
type ErrorResponse struct {
	Error string `json:"error" example:"query is required"`
}

// Server exposes the upstream over HTTP.
type Server struct {
	port     int
	upstream Upstream
	limiter  *ipLimiter
	server   *http.Server
}

// New creates a proxy server in front of up.
func New(cfg config.ProxyConfig, up Upstream) *Server {
	s := &Server{port: cfg.Port, upstream: up}
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return s
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// POST /gemini: forwards a query upstream.
	mux.HandleFunc("POST /gemini", s.handleGenerate)

	// Swagger UI, backed by the document registered in docs.go.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.middleware(h)
	}
	return withRequestID(withCORS(h))
}

// ListenAndServe runs the proxy until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("answer proxy listening", "port", s.port, "upstream", s.upstream.Name())

	go func() {
		<-ctx.Done()
		slog.Info("answer proxy shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("proxy listen: %w", err)
	}
	return nil
}

// handleGenerate processes a POST /gemini request.
//
// @Summary     Answer a free-form question
// @Description Forwards the query to the configured language model and returns its
// @Description generateContent response unchanged. Upstream API errors keep their status code.
// @Tags        answer
// @Accept      json
// @Produce     json
// @Param       request  body      proxy.Request  true  "Question to answer"
// @Success     200  {object}  map[string]any  "generateContent response"
// @Failure     400  {object}  proxy.ErrorResponse  "Invalid request body or empty query"
// @Failure     429  {object}  proxy.ErrorResponse  "Rate limit exceeded"
// @Failure     500  {object}  proxy.ErrorResponse  "Internal processing error"
// @Router      /gemini [post]
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestID(r.Context())

	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	data, err := s.upstream.Generate(r.Context(), query)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			slog.Warn("upstream rejected query", "request_id", reqID, "status", se.Code)
			w.WriteHeader(se.Code)
			_, _ = io.WriteString(w, se.Body)
			return
		}
		slog.Error("upstream failed", "request_id", reqID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("query answered",
		"request_id", reqID,
		"upstream", s.upstream.Name(),
		"duration_ms", time.Since(start).Milliseconds())

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
