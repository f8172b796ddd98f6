package tts

import (
	"context"
	"sync"

	"github.com/nadzzz/voiceloop/internal/audio"
)

// Mock implements Synthesizer for testing.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns 10ms of silence per character at 16 kHz.
	SynthesizeFunc func(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	mu    sync.Mutex
	calls []SynthesizeOpts
}

var _ Synthesizer = (*Mock)(nil)

// Synthesize calls SynthesizeFunc and records the options.
func (m *Mock) Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, opts)
	}
	const rate = 16000
	wav, err := audio.EncodeWAV(make([]int16, len(text)*rate/100), audio.Format{SampleRate: rate})
	if err != nil {
		return nil, err
	}
	return &SynthesizeResult{Audio: wav, ContentType: "audio/wav", SampleRate: rate, Channels: 1}, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// CallCount returns how many times Synthesize was called.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastOpts returns the options of the most recent call.
func (m *Mock) LastOpts() SynthesizeOpts {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return SynthesizeOpts{}
	}
	return m.calls[len(m.calls)-1]
}
