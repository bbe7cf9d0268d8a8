package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIBaseURL points at the local Gemini proxy.
	DefaultOpenAIBaseURL = "http://127.0.0.1:11435/v1"
	// DefaultModel is the model requested when none is configured.
	DefaultModel = "gemini-3.0-flash"

	defaultHTTPTimeout = time.Minute
	defaultMaxTokens   = 1000
)

// OpenAI translates through any OpenAI-compatible chat completions API.
type OpenAI struct {
	APIKey         string
	Model          string
	BaseURL        string
	SourceLanguage string
	TargetLanguage string
	Temperature    float64
	HTTPClient     *http.Client
}

var _ Backend = (*OpenAI)(nil)

// OpenAIOption configures an OpenAI backend.
type OpenAIOption func(*OpenAI)

// NewOpenAI returns an OpenAI-compatible backend for model translating into
// targetLanguage.
func NewOpenAI(model, targetLanguage string, opts ...OpenAIOption) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	o := &OpenAI{
		Model:          strings.TrimSpace(model),
		BaseURL:        DefaultOpenAIBaseURL,
		TargetLanguage: targetLanguage,
		Temperature:    0.3,
		HTTPClient:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) OpenAIOption {
	return func(o *OpenAI) { o.APIKey = strings.TrimSpace(key) }
}

// WithBaseURL sets the API base URL, e.g. "https://api.openai.com/v1".
func WithBaseURL(baseURL string) OpenAIOption {
	return func(o *OpenAI) {
		if strings.TrimSpace(baseURL) != "" {
			o.BaseURL = strings.TrimSpace(baseURL)
		}
	}
}

// WithSourceLanguage pins the source language instead of auto-detecting it.
func WithSourceLanguage(lang string) OpenAIOption {
	return func(o *OpenAI) { o.SourceLanguage = lang }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		if c != nil {
			o.HTTPClient = c
		}
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Translate implements Backend.
func (o *OpenAI) Translate(ctx context.Context, text, history string) (string, error) {
	p := BuildPrompt(o.SourceLanguage, o.TargetLanguage, history, text)
	body, err := json.Marshal(chatRequest{
		Model: o.Model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: o.Temperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyTranslation
	}
	return out.Choices[0].Message.Content, nil
}

// APIError is an error response from an OpenAI-compatible server.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" || e.Code != "" {
		return fmt.Sprintf("openai: API error %d (%s, %s): %s", e.StatusCode, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("openai: API error %d: %s", e.StatusCode, e.Message)
}

// Is maps authentication and quota statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func decodeAPIError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return fmt.Errorf("openai: API status %d and failed to read error body: %w", resp.StatusCode, readErr)
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		if envelope.Error.Code != nil {
			apiErr.Code = fmt.Sprint(envelope.Error.Code)
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
