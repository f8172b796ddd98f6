package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Player plays a complete WAV clip, blocking until playback finishes.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// ExecPlayer pipes WAV data into aplay or ffplay.
type ExecPlayer struct {
	backend string
	device  string

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecPlayer creates a player for the given backend ("aplay" or "ffplay").
func NewExecPlayer(backend, device string) (*ExecPlayer, error) {
	switch backend {
	case "", "aplay":
		backend = "aplay"
	case "ffplay":
	default:
		return nil, fmt.Errorf("audio player: unknown backend %q", backend)
	}
	return &ExecPlayer{backend: backend, device: device, command: exec.CommandContext}, nil
}

func (p *ExecPlayer) args() []string {
	if p.backend == "ffplay" {
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", "-"}
	}
	args := []string{"-q"}
	if p.device != "" {
		args = append(args, "-D", p.device)
	}
	return append(args, "-")
}

// Play writes the clip to the player's stdin and waits for it to exit.
func (p *ExecPlayer) Play(ctx context.Context, wav []byte) error {
	if len(wav) == 0 {
		return fmt.Errorf("audio player: empty clip")
	}
	cmd := p.command(ctx, p.backend, p.args()...)
	cmd.Stdin = bytes.NewReader(wav)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("playing audio", "backend", p.backend, "bytes", len(wav))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio player: %s: %w: %s", p.backend, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
