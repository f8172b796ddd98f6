// Package llm defines the interface for reply generation.
package llm

import "context"

// Generator produces a conversational reply to a prompt. From the caller's
// view every call is independent; a backend may keep its own context.
type Generator interface {
	// Name returns the backend identifier.
	Name() string

	// Generate returns the reply text for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases any resources held by the generator.
	Close() error
}
