// Package capture accumulates microphone frames for one recording session at
// a time and finalizes them into an immutable Buffer.
//
// OnFrame is called from the input driver's goroutine and never waits on
// anything slower than a slice append: the active frame list is swapped out
// under a short critical section when the session stops.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadzzz/voiceloop/internal/audio"
)

var (
	// ErrAlreadyRecording is returned by Arm when a session is in progress.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrNotRecording is returned by Stop when no session is in progress.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrEmptyRecording is returned by Stop when no frames arrived. It is an
	// expected outcome, not a failure.
	ErrEmptyRecording = errors.New("capture: no audio recorded")
)

// Status is the recording session state.
type Status int32

const (
	StatusIdle Status = iota
	StatusArmed
	StatusRecording
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusArmed:
		return "armed"
	case StatusRecording:
		return "recording"
	case StatusStopping:
		return "stopping"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Config bounds a recording session.
type Config struct {
	// SampleRate of incoming mono PCM16 frames, in Hz.
	SampleRate int

	// MaxDuration stops accumulation of an unattended session.
	MaxDuration time.Duration
}

// DefaultConfig returns 44.1 kHz capture with a two minute limit.
func DefaultConfig() Config {
	return Config{
		SampleRate:  44100,
		MaxDuration: 2 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("capture: max duration must be positive, got %s", c.MaxDuration)
	}
	return nil
}

// Capture owns the single recording session.
type Capture struct {
	cfg    Config
	status atomic.Int32

	// dropped counts frames that arrived outside a recording session.
	dropped atomic.Int64

	mu        sync.Mutex
	active    [][]int16
	spare     [][]int16
	limited   bool
	startedAt time.Time
	limit     *time.Timer
}

// New creates an idle Capture.
func New(cfg Config) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Capture{cfg: cfg}, nil
}

// Config returns the capture configuration.
func (c *Capture) Config() Config { return c.cfg }

// Status returns the current session state.
func (c *Capture) Status() Status { return Status(c.status.Load()) }

// Dropped returns the number of frames discarded because no session was recording.
func (c *Capture) Dropped() int64 { return c.dropped.Load() }

// StartedAt returns when the current session was armed, or the zero time.
func (c *Capture) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Arm starts a new session, discarding any frames left from the previous one.
// onLimit, if non-nil, is called on its own goroutine when the session reaches
// MaxDuration; frames arriving after that are dropped until Stop.
func (c *Capture) Arm(onLimit func()) error {
	if !c.status.CompareAndSwap(int32(StatusIdle), int32(StatusArmed)) {
		return ErrAlreadyRecording
	}

	c.mu.Lock()
	clear(c.active)
	c.active = c.active[:0]
	c.limited = false
	c.startedAt = time.Now()
	c.limit = time.AfterFunc(c.cfg.MaxDuration, func() { c.reachLimit(onLimit) })
	c.mu.Unlock()

	c.status.Store(int32(StatusRecording))
	slog.Debug("capture armed", "sample_rate", c.cfg.SampleRate, "max_duration", c.cfg.MaxDuration)
	return nil
}

func (c *Capture) reachLimit(onLimit func()) {
	c.mu.Lock()
	if c.Status() != StatusRecording {
		c.mu.Unlock()
		return
	}
	c.limited = true
	c.mu.Unlock()

	slog.Info("capture reached max duration", "max_duration", c.cfg.MaxDuration)
	if onLimit != nil {
		onLimit()
	}
}

// OnFrame appends a copy of chunk to the session. Safe to call concurrently
// with Stop; frames outside a recording session are dropped.
func (c *Capture) OnFrame(chunk []int16) {
	if len(chunk) == 0 {
		return
	}
	if c.Status() != StatusRecording {
		c.dropped.Add(1)
		return
	}
	frame := make([]int16, len(chunk))
	copy(frame, chunk)

	c.mu.Lock()
	if c.Status() != StatusRecording || c.limited {
		c.mu.Unlock()
		c.dropped.Add(1)
		return
	}
	c.active = append(c.active, frame)
	c.mu.Unlock()
}

// Stop ends the session and returns the concatenated audio. It returns
// ErrEmptyRecording when no frames were captured.
func (c *Capture) Stop() (Buffer, error) {
	if !c.status.CompareAndSwap(int32(StatusRecording), int32(StatusStopping)) {
		return Buffer{}, ErrNotRecording
	}

	c.mu.Lock()
	frames := c.active
	c.active = c.spare
	if c.limit != nil {
		c.limit.Stop()
		c.limit = nil
	}
	c.mu.Unlock()

	buf := concat(frames, c.cfg.SampleRate)

	c.mu.Lock()
	clear(frames)
	c.spare = frames[:0]
	c.mu.Unlock()

	c.status.Store(int32(StatusIdle))

	if buf.frames == 0 {
		return Buffer{}, ErrEmptyRecording
	}
	slog.Debug("capture stopped", "frames", buf.frames, "duration", buf.Duration())
	return buf, nil
}

func concat(frames [][]int16, sampleRate int) Buffer {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	samples := make([]int16, 0, total)
	for _, f := range frames {
		samples = append(samples, f...)
	}
	return Buffer{samples: samples, sampleRate: sampleRate, frames: len(frames)}
}

// Buffer is a finalized, immutable recording.
type Buffer struct {
	samples    []int16
	sampleRate int
	frames     int
}

// NewBuffer builds a Buffer from samples, copying them.
func NewBuffer(samples []int16, sampleRate int) Buffer {
	s := make([]int16, len(samples))
	copy(s, samples)
	return Buffer{samples: s, sampleRate: sampleRate, frames: 1}
}

// Samples returns the PCM16 samples. Callers must not modify the slice.
func (b Buffer) Samples() []int16 { return b.samples }

// SampleRate returns the buffer's sample rate in Hz.
func (b Buffer) SampleRate() int { return b.sampleRate }

// Frames returns how many driver frames were concatenated.
func (b Buffer) Frames() int { return b.frames }

// Empty reports whether the buffer holds no samples.
func (b Buffer) Empty() bool { return len(b.samples) == 0 }

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// WAV encodes the buffer as a mono PCM16 WAV file.
func (b Buffer) WAV() ([]byte, error) {
	return audio.EncodeWAV(b.samples, audio.Format{SampleRate: b.sampleRate, Channels: 1})
}
