// Package translate decides when residual and finalized caption text is
// translated, and talks to the translation backends.
package translate

import (
	"context"
	"errors"
)

// Backend translates one piece of text. history holds prior
// "original -> translation" lines, oldest first, and may be empty.
type Backend interface {
	Translate(ctx context.Context, text, history string) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, text, history string) (string, error)

// Translate implements Backend.
func (f BackendFunc) Translate(ctx context.Context, text, history string) (string, error) {
	return f(ctx, text, history)
}

var (
	// ErrEmptyTranslation is returned when a backend responds without text.
	ErrEmptyTranslation = errors.New("translate: empty translation")

	// ErrRateLimited is returned when the backend rejects a request for
	// quota reasons.
	ErrRateLimited = errors.New("translate: rate limited")

	// ErrUnauthorized is returned when the backend rejects the credentials.
	ErrUnauthorized = errors.New("translate: unauthorized")
)
