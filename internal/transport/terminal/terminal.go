// Package terminal implements a line-oriented console surface: single-letter
// commands on input, rendered session changes on output.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/nadzzz/voiceloop/internal/transport"
)

// Transport implements transport.Transport on a reader/writer pair.
type Transport struct {
	in  io.Reader
	out *Formatter

	mu     sync.Mutex
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates a terminal surface reading commands from in and rendering to out.
func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{in: in, out: NewFormatter(out)}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "terminal" }

// Listen renders state and executes commands until "q", end of input, or ctx
// is cancelled.
func (t *Transport) Listen(ctx context.Context, p transport.Pipeline) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	updates, unsubscribe := p.Subscribe()
	defer unsubscribe()

	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				t.out.Render(snap)
			}
		}
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	t.out.Help()
	defer func() {
		cancel()
		t.bg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := t.exec(ctx, p, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (t *Transport) exec(ctx context.Context, p transport.Pipeline, cmd string) (quit bool) {
	switch strings.ToLower(cmd) {
	case "":
	case "r", "record":
		if _, err := p.StartRecording(ctx); err != nil {
			t.out.Error(err)
		}
	case "s", "stop":
		if err := p.StopRecording(); err != nil {
			t.out.Error(err)
		}
	case "p", "play":
		t.bg.Add(1)
		go func() {
			defer t.bg.Done()
			if err := p.PlayReply(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.out.Error(err)
			}
		}()
	case "c", "copy":
		text, err := p.CopyTranscript()
		if err != nil {
			t.out.Error(err)
			return false
		}
		t.out.Transcript(text)
	case "q", "quit", "exit":
		return true
	case "h", "help", "?":
		t.out.Help()
	default:
		t.out.Info("Unknown command " + cmd)
		t.out.Help()
	}
	return false
}

// Close stops Listen.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
