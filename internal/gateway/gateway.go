// Package gateway wraps the three inference engines behind one uniform API.
//
// Every call is isolated: engine errors and panics come back as a
// *StageError tagged with the stage that failed, and nothing an engine does
// can take the process down.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nadzzz/voiceloop/internal/audio"
	"github.com/nadzzz/voiceloop/internal/capture"
	"github.com/nadzzz/voiceloop/internal/llm"
	"github.com/nadzzz/voiceloop/internal/metrics"
	"github.com/nadzzz/voiceloop/internal/stt"
	"github.com/nadzzz/voiceloop/internal/tts"
)

// Stage names an inference step of a turn.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StageSynthesize Stage = "synthesize"
)

var (
	ErrTranscription = errors.New("transcription failed")
	ErrGeneration    = errors.New("generation failed")
	ErrSynthesis     = errors.New("synthesis failed")
)

func (s Stage) sentinel() error {
	switch s {
	case StageTranscribe:
		return ErrTranscription
	case StageGenerate:
		return ErrGeneration
	default:
		return ErrSynthesis
	}
}

// StageError is a failure of one inference stage. It matches the stage's
// sentinel with errors.Is and unwraps to the engine error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.sentinel(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is reports whether target is this stage's sentinel.
func (e *StageError) Is(target error) bool { return target == e.Stage.sentinel() }

// Transcript is the text of one recording and the language it was spoken in.
type Transcript struct {
	Text string

	// Language is the ISO-639-1 code reported by the engine, empty if unknown.
	Language string
}

// AudioRef is synthesized speech ready for playback.
type AudioRef struct {
	WAV        []byte
	SampleRate int
	Duration   time.Duration
}

// Options are per-gateway engine settings.
type Options struct {
	// Language is the fallback voice and transcription language.
	Language string

	// Voice overrides language-based voice selection.
	Voice string
}

// Gateway calls the engines.
type Gateway struct {
	transcriber stt.Transcriber
	generator   llm.Generator
	synthesizer tts.Synthesizer
	metrics     *metrics.Metrics
	opts        Options
	log         *slog.Logger
}

// New creates a gateway over the given engines. m may be nil.
func New(t stt.Transcriber, g llm.Generator, s tts.Synthesizer, m *metrics.Metrics, opts Options) *Gateway {
	return &Gateway{
		transcriber: t,
		generator:   g,
		synthesizer: s,
		metrics:     m,
		opts:        opts,
		log:         slog.Default().With("component", "gateway"),
	}
}

// Transcribe converts a finalized recording to text.
func (g *Gateway) Transcribe(ctx context.Context, buf capture.Buffer) (Transcript, error) {
	var tr Transcript
	err := g.call(ctx, StageTranscribe, func(ctx context.Context) error {
		wav, err := buf.WAV()
		if err != nil {
			return err
		}
		res, err := g.transcriber.Transcribe(ctx, wav, "audio/wav", stt.TranscribeOpts{Language: g.opts.Language})
		if err != nil {
			return err
		}
		tr = Transcript{Text: res.Text, Language: res.Language}
		return nil
	})
	return tr, err
}

// Generate produces a reply to prompt.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	var reply string
	err := g.call(ctx, StageGenerate, func(ctx context.Context) error {
		var err error
		reply, err = g.generator.Generate(ctx, prompt)
		return err
	})
	return reply, err
}

// Synthesize converts text to playable speech in lang, or in the configured
// language when lang is empty.
func (g *Gateway) Synthesize(ctx context.Context, text, lang string) (*AudioRef, error) {
	var ref *AudioRef
	err := g.call(ctx, StageSynthesize, func(ctx context.Context) error {
		if lang == "" {
			lang = g.opts.Language
		}

		res, err := g.synthesizer.Synthesize(ctx, text, tts.SynthesizeOpts{Language: lang, Voice: g.opts.Voice})
		if err != nil {
			return err
		}
		if res == nil || len(res.Audio) == 0 {
			return errors.New("engine returned no audio")
		}
		d, err := audio.WAVDuration(res.Audio)
		if err != nil {
			return err
		}
		ref = &AudioRef{WAV: res.Audio, SampleRate: res.SampleRate, Duration: d}
		return nil
	})
	return ref, err
}

// Close closes all engines.
func (g *Gateway) Close() error {
	return errors.Join(g.transcriber.Close(), g.generator.Close(), g.synthesizer.Close())
}

func (g *Gateway) call(ctx context.Context, stage Stage, fn func(context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("engine panic", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("engine panic: %v", r)
		}
		g.metrics.ObserveStage(string(stage), time.Since(start), err)
		if err != nil {
			if ctx.Err() == nil {
				g.log.Warn("stage failed", "stage", stage, "error", err)
			}
			err = &StageError{Stage: stage, Err: err}
			return
		}
		g.log.Debug("stage complete", "stage", stage, "duration", time.Since(start))
	}()
	return fn(ctx)
}
