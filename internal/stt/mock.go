package stt

import (
	"context"
	"sync"
)

// Mock implements Transcriber for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns the text "hello".
	TranscribeFunc func(ctx context.Context, audio []byte) (*Result, error)

	mu    sync.Mutex
	calls int
}

var _ Transcriber = (*Mock)(nil)

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Transcribe calls TranscribeFunc and counts the call.
func (m *Mock) Transcribe(ctx context.Context, audio []byte, _ string, _ TranscribeOpts) (*Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return &Result{Text: "hello"}, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// CallCount returns how many times Transcribe was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
