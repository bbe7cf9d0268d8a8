// Package proxy serves an OpenAI-compatible chat completions API backed by
// Gemini, so the OpenAI translation backend can run without an OpenAI
// account.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/w93163red/LivCap-Translate/internal/translate"
)

// Defaults.
const (
	DefaultAddr        = "127.0.0.1:11435"
	DefaultMinInterval = 2 * time.Second
	DefaultModel       = "gemini-3.0-flash"
)

// AvailableModels is what GET /v1/models advertises.
var AvailableModels = []string{
	"gemini-3.0-flash",
	"gemini-3.0-pro",
	"gemini-3.0-flash-thinking",
}

var modelAliases = map[string]string{
	"gpt-4o":      DefaultModel,
	"gpt-4o-mini": DefaultModel,
}

// ResolveModel maps OpenAI model names onto Gemini ones. Unknown names pass
// through.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if m, ok := modelAliases[name]; ok {
		return m
	}
	return name
}

// Server handles the OpenAI-compatible endpoints.
type Server struct {
	gen      Generator
	throttle *translate.Throttle
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMinInterval sets the minimum spacing between upstream requests.
func WithMinInterval(d time.Duration) Option {
	return func(s *Server) { s.throttle = translate.NewThrottle(nil, d) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer returns a Server that forwards to gen.
func NewServer(gen Generator, opts ...Option) *Server {
	s := &Server{
		gen:      gen,
		throttle: translate.NewThrottle(nil, DefaultMinInterval),
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "proxy")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("POST /chat/completions", s.handleChat)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("proxy listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"client_ready": s.gen != nil && s.gen.Ready(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	created := s.now().Unix()
	list := modelList{Object: "list"}
	for _, id := range AvailableModels {
		list.Data = append(list.Data, modelInfo{ID: id, Object: "model", Created: created, OwnedBy: "google"})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "invalid_request_error", "")
		return
	}
	model := ResolveModel(req.Model)
	if model == "" {
		writeError(w, http.StatusBadRequest, "model is required", "invalid_request_error", "invalid_model")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required", "invalid_request_error", "")
		return
	}
	prompt := joinMessages(req.Messages)

	if err := s.throttle.Wait(r.Context()); err != nil {
		return
	}

	if req.Stream {
		s.stream(w, r, req, model, prompt)
		return
	}

	start := s.now()
	text, err := s.gen.Generate(r.Context(), model, prompt, req.Temperature)
	if err != nil {
		s.log.Warn("generate failed", "model", model, "error", err)
		writeUpstreamError(w, err)
		return
	}
	s.log.Debug("completion", "model", model, "latency", time.Since(start))
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, req chatRequest, model, prompt string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "server_error", "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := completionID()
	created := s.now().Unix()
	send := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	chunk := func(d delta, finish *string) chatChunk {
		return chatChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []streamChoice{{Delta: d, FinishReason: finish}},
		}
	}

	if err := send(chunk(delta{Role: "assistant"}, nil)); err != nil {
		return
	}
	err := s.gen.Stream(r.Context(), model, prompt, req.Temperature, func(text string) error {
		return send(chunk(delta{Content: text}, nil))
	})
	if err != nil {
		s.log.Warn("stream failed", "model", model, "error", err)
		_ = send(errorResponse{Error: errorDetail{Message: err.Error(), Type: "upstream_error"}})
	} else {
		stop := "stop"
		_ = send(chunk(delta{}, &stop))
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func joinMessages(msgs []chatMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

func completionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUpstreamAuth):
		writeError(w, http.StatusUnauthorized, "Gemini authentication failed: "+err.Error(), "authentication_error", "auth_error")
	case errors.Is(err, ErrUpstreamRateLimit):
		writeError(w, http.StatusTooManyRequests, "Gemini rate limit: "+err.Error(), "rate_limit_error", "rate_limit")
	case errors.Is(err, ErrInvalidModel):
		writeError(w, http.StatusBadRequest, "Invalid model: "+err.Error(), "invalid_request_error", "model_invalid")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, "Gemini timeout: "+err.Error(), "upstream_error", "timeout")
	default:
		writeError(w, http.StatusBadGateway, "Gemini error: "+err.Error(), "upstream_error", "gemini_error")
	}
}

func writeError(w http.ResponseWriter, status int, message, typ, code string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Message: message, Type: typ, Code: code}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
