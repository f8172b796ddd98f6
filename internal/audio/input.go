package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// FrameHandler receives one block of mono PCM16 samples. It is invoked from
// the driver's read goroutine and must not retain the slice.
type FrameHandler func(samples []int16)

// Input is a microphone driver. Run streams blocks to onFrame until ctx is
// cancelled or the device stops.
type Input interface {
	Run(ctx context.Context, onFrame FrameHandler) error
}

// InputConfig configures the command-line capture driver.
type InputConfig struct {
	// Backend is "arecord" (ALSA) or "ffmpeg".
	Backend string

	// Device is the backend-specific device name ("default", "hw:1,0", ":0").
	Device string

	// FFmpegFormat is the ffmpeg input format ("alsa", "pulse", "avfoundation").
	FFmpegFormat string

	SampleRate int

	// BlockDuration is the size of each frame handed to onFrame.
	BlockDuration time.Duration
}

// ExecInput captures audio by running arecord or ffmpeg and reading raw
// s16le mono PCM from its stdout.
type ExecInput struct {
	cfg InputConfig

	// command builds the capture process; replaced in tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecInput creates a command-line capture driver.
func NewExecInput(cfg InputConfig) (*ExecInput, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio input: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 100 * time.Millisecond
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	switch cfg.Backend {
	case "", "arecord":
		cfg.Backend = "arecord"
	case "ffmpeg":
		if cfg.FFmpegFormat == "" {
			cfg.FFmpegFormat = "alsa"
		}
	default:
		return nil, fmt.Errorf("audio input: unknown backend %q", cfg.Backend)
	}
	return &ExecInput{cfg: cfg, command: exec.CommandContext}, nil
}

// BlockSamples returns the number of samples in each frame.
func (in *ExecInput) BlockSamples() int {
	n := int(int64(in.cfg.SampleRate) * int64(in.cfg.BlockDuration) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}

func (in *ExecInput) args() (string, []string) {
	rate := strconv.Itoa(in.cfg.SampleRate)
	if in.cfg.Backend == "ffmpeg" {
		return "ffmpeg", []string{
			"-hide_banner", "-loglevel", "error",
			"-f", in.cfg.FFmpegFormat,
			"-i", in.cfg.Device,
			"-ac", "1",
			"-ar", rate,
			"-f", "s16le",
			"-",
		}
	}
	return "arecord", []string{
		"-q",
		"-D", in.cfg.Device,
		"-f", "S16_LE",
		"-c", "1",
		"-r", rate,
		"-t", "raw",
	}
}

// Run starts the capture process and blocks until ctx is cancelled.
func (in *ExecInput) Run(ctx context.Context, onFrame FrameHandler) error {
	name, args := in.args()
	cmd := in.command(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio input: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio input: starting %s: %w", name, err)
	}
	slog.Debug("audio input started", "backend", name, "device", in.cfg.Device, "sample_rate", in.cfg.SampleRate)

	readErr := ReadFrames(stdout, in.BlockSamples(), onFrame)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("audio input: reading %s: %w", name, readErr)
	}
	if waitErr != nil {
		return fmt.Errorf("audio input: %s exited: %w", name, waitErr)
	}
	return nil
}

// ReadFrames reads s16le PCM from r in blocks of blockSamples and hands each
// complete block to onFrame. The sample slice is reused between calls.
// A trailing partial block is delivered before returning.
func ReadFrames(r io.Reader, blockSamples int, onFrame FrameHandler) error {
	raw := make([]byte, blockSamples*2)
	samples := make([]int16, blockSamples)
	for {
		n, err := io.ReadFull(r, raw)
		if n >= 2 {
			count := n / 2
			for i := 0; i < count; i++ {
				samples[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
			}
			onFrame(samples[:count])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
}
