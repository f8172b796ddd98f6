// Package app wires the configured engines, audio drivers and stores into a
// running pipeline.
package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/nadzzz/voiceloop/internal/artifact"
	"github.com/nadzzz/voiceloop/internal/audio"
	"github.com/nadzzz/voiceloop/internal/capture"
	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/gateway"
	"github.com/nadzzz/voiceloop/internal/llm/chat"
	"github.com/nadzzz/voiceloop/internal/metrics"
	"github.com/nadzzz/voiceloop/internal/pipeline"
	"github.com/nadzzz/voiceloop/internal/session"
	"github.com/nadzzz/voiceloop/internal/stt/whisper"
	"github.com/nadzzz/voiceloop/internal/tts/piper"
)

// App holds the long-lived components of one voiceloop process.
type App struct {
	Config   *config.Config
	Metrics  *metrics.Metrics
	Gateway  *gateway.Gateway
	Pipeline *pipeline.Pipeline
}

// New builds the pipeline described by cfg. Artifacts are written to fs.
func New(cfg *config.Config, fs afero.Fs) (*App, error) {
	m := metrics.New()

	c, err := capture.New(capture.Config{
		SampleRate:  cfg.Audio.SampleRate,
		MaxDuration: cfg.Audio.MaxDuration,
	})
	if err != nil {
		return nil, err
	}

	input, err := audio.NewExecInput(audio.InputConfig{
		Backend:       cfg.Audio.Input.Backend,
		Device:        cfg.Audio.Input.Device,
		FFmpegFormat:  cfg.Audio.Input.FFmpegFormat,
		SampleRate:    cfg.Audio.SampleRate,
		BlockDuration: cfg.Audio.BlockDuration,
	})
	if err != nil {
		return nil, err
	}

	player, err := audio.NewExecPlayer(cfg.Audio.Output.Backend, cfg.Audio.Output.Device)
	if err != nil {
		return nil, err
	}

	transcriber := whisper.New(cfg.STT)
	generator := chat.New(cfg.LLM)
	synthesizer := piper.New(cfg.TTS.Piper)
	gw := gateway.New(transcriber, generator, synthesizer, m, gateway.Options{
		Language: cfg.TTS.Language,
		Voice:    cfg.TTS.Voice,
	})

	opts := pipeline.Options{
		Input:   input,
		Player:  player,
		Metrics: m,
	}
	if cfg.Artifacts.Enabled {
		store, err := artifact.New(fs, cfg.Artifacts.OutputDir)
		if err != nil {
			_ = gw.Close()
			return nil, fmt.Errorf("artifacts: %w", err)
		}
		opts.Artifacts = store
	}

	slog.Info("pipeline configured",
		"stt", transcriber.Name(),
		"llm", generator.Name(),
		"tts", cfg.TTS.Backend,
		"sample_rate", cfg.Audio.SampleRate,
		"artifacts", cfg.Artifacts.Enabled)

	return &App{
		Config:   cfg,
		Metrics:  m,
		Gateway:  gw,
		Pipeline: pipeline.New(c, gw, session.NewStore(), opts),
	}, nil
}

// Close stops the pipeline and releases the engines.
func (a *App) Close() error {
	a.Pipeline.Close()
	return a.Gateway.Close()
}
