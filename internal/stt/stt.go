// Package stt defines the interface for speech-to-text transcription.
package stt

import "context"

// TranscribeOpts controls transcription behavior.
type TranscribeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr") to guide transcription.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string
}

// Result holds the output of a transcription.
type Result struct {
	Text string

	// Language is the detected ISO-639-1 code, if the engine reports one.
	Language string
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	// Name returns the backend identifier (e.g., "whisper").
	Name() string

	// Transcribe converts audio bytes of the given content type to text.
	Transcribe(ctx context.Context, audio []byte, contentType string, opts TranscribeOpts) (*Result, error)

	// Close releases any resources held by the transcriber.
	Close() error
}
