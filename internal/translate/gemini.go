package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini translates with the Gemini API.
type Gemini struct {
	client         *genai.Client
	model          string
	sourceLanguage string
	targetLanguage string
	temperature    float32
}

var _ Backend = (*Gemini)(nil)

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	SourceLanguage string
	TargetLanguage string
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w: missing API key", ErrUnauthorized)
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{
		client:         client,
		model:          model,
		sourceLanguage: cfg.SourceLanguage,
		targetLanguage: cfg.TargetLanguage,
		temperature:    0.3,
	}, nil
}

// Translate implements Backend.
func (g *Gemini) Translate(ctx context.Context, text, history string) (string, error) {
	p := BuildPrompt(g.sourceLanguage, g.targetLanguage, history, text)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return resp.Text(), nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("gemini: %w: %s", ErrUnauthorized, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("gemini: %w: %s", ErrRateLimited, apiErr.Message)
		}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
