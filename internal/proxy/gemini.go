package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Upstream failure classes. Generators wrap these so the server can pick
// the OpenAI status and error type.
var (
	ErrUpstreamAuth      = errors.New("upstream authentication failed")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrInvalidModel      = errors.New("invalid model")
)

// Generator produces completions for a flattened prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, temperature *float32) (string, error)
	// Stream calls fn with each text delta in order.
	Stream(ctx context.Context, model, prompt string, temperature *float32, fn func(delta string) error) error
	Ready() bool
}

// Gemini generates with the Gemini API.
type Gemini struct {
	client *genai.Client
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a Gemini API client. baseURL may be empty.
func NewGemini(ctx context.Context, apiKey, baseURL string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", ErrUpstreamAuth)
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Ready reports whether the client was created.
func (g *Gemini) Ready() bool { return g != nil && g.client != nil }

func generateConfig(temperature *float32) *genai.GenerateContentConfig {
	if temperature == nil {
		return nil
	}
	return &genai.GenerateContentConfig{Temperature: genai.Ptr(*temperature)}
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, model, prompt string, temperature *float32) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), generateConfig(temperature))
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// Stream implements Generator.
func (g *Gemini) Stream(ctx context.Context, model, prompt string, temperature *float32, fn func(string) error) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), generateConfig(temperature)) {
		if err != nil {
			return classify(err)
		}
		if text := resp.Text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUpstreamAuth, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrUpstreamRateLimit, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrInvalidModel, apiErr.Message)
		}
	}
	return err
}
