package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassifyUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", genai.APIError{Code: 401, Message: "API key not valid"}, ErrUpstreamAuth},
		{"forbidden", genai.APIError{Code: 403, Message: "permission denied"}, ErrUpstreamAuth},
		{"quota", fmt.Errorf("call: %w", genai.APIError{Code: 429, Message: "quota exceeded"}), ErrUpstreamRateLimit},
		{"unknown model", genai.APIError{Code: 404, Message: "model not found"}, ErrInvalidModel},
		{"server error", genai.APIError{Code: 500, Message: "internal"}, nil},
		{"transport", errors.New("connection reset"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.want == nil {
				for _, sentinel := range []error{ErrUpstreamAuth, ErrUpstreamRateLimit, ErrInvalidModel} {
					if errors.Is(got, sentinel) {
						t.Fatalf("classify(%v) = %v, want passthrough", tt.err, got)
					}
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "  ", ""); !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("err = %v, want ErrUpstreamAuth", err)
	}
}
