// Package pipeline drives a conversation turn through its stages:
//
//	Idle → Recording → Transcribing → Generating → Synthesizing → Ready
//
// Every turn has an ID. Each stage runs on its own goroutine carrying that ID
// and the turn's context; results are published to the session store only if
// the ID is still current, so a new recording cleanly supersedes a turn that
// is still in flight.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/voiceloop/internal/audio"
	"github.com/nadzzz/voiceloop/internal/capture"
	"github.com/nadzzz/voiceloop/internal/gateway"
	"github.com/nadzzz/voiceloop/internal/metrics"
	"github.com/nadzzz/voiceloop/internal/session"
)

var (
	// ErrAlreadyRecording is returned by StartRecording while a recording is in progress.
	ErrAlreadyRecording = capture.ErrAlreadyRecording

	// ErrNotRecording is returned by StopRecording when nothing is recording.
	ErrNotRecording = capture.ErrNotRecording

	// ErrNothingToPlay is returned by PlayReply when no synthesized reply exists.
	ErrNothingToPlay = errors.New("pipeline: no synthesized reply to play")

	// ErrNoPlayer is returned by PlayReply when playback is not configured.
	ErrNoPlayer = errors.New("pipeline: no audio player configured")

	// ErrNoTranscript is returned by CopyTranscript before any transcript exists.
	ErrNoTranscript = errors.New("pipeline: no transcript")

	// ErrClosed is returned by StartRecording and StopRecording after Close.
	ErrClosed = errors.New("pipeline: closed")
)

// Turn outcomes reported to metrics.
const (
	outcomeReady      = "ready"
	outcomeDegraded   = "degraded"
	outcomeFailed     = "failed"
	outcomeEmpty      = "empty"
	outcomeSuperseded = "superseded"
)

// Inference is the engine gateway as seen by the pipeline.
type Inference interface {
	Transcribe(ctx context.Context, buf capture.Buffer) (gateway.Transcript, error)
	Generate(ctx context.Context, prompt string) (string, error)
	Synthesize(ctx context.Context, text, lang string) (*gateway.AudioRef, error)
}

// Artifacts persists the outputs of a turn.
type Artifacts interface {
	SaveAudio(wav []byte) error
	SaveTranscript(text string) error
	SaveReplyAudio(wav []byte) error
}

// Options holds the optional collaborators of a Pipeline.
type Options struct {
	// Input, if set, is run for the duration of each recording and feeds
	// the capture.
	Input audio.Input

	// Player plays synthesized replies. PlayReply fails without one.
	Player audio.Player

	// Artifacts, if set, receives the recording, transcript, and reply audio.
	Artifacts Artifacts

	Metrics *metrics.Metrics

	// TickInterval is how often the elapsed counter advances. Defaults to one second.
	TickInterval time.Duration
}

// Pipeline is the turn orchestrator. Its methods are safe for concurrent use
// by any number of surfaces.
type Pipeline struct {
	capture *capture.Capture
	engine  Inference
	store   *session.Store
	opts    Options
	log     *slog.Logger

	base      context.Context
	closeBase context.CancelFunc

	mu          sync.Mutex
	closed      bool
	turnID      string
	turnCtx     context.Context
	cancelTurn  context.CancelFunc
	stopRecord  context.CancelFunc
	lastDropped int64

	wg sync.WaitGroup
}

// New creates a pipeline. The store should be fresh; the pipeline is its only writer.
func New(c *capture.Capture, engine Inference, store *session.Store, opts Options) *Pipeline {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		capture:   c,
		engine:    engine,
		store:     store,
		opts:      opts,
		log:       slog.Default().With("component", "pipeline"),
		base:      base,
		closeBase: cancel,
	}
}

// Snapshot returns the current session state.
func (p *Pipeline) Snapshot() session.Snapshot { return p.store.Snapshot() }

// Subscribe streams session state changes. See session.Store.Subscribe.
func (p *Pipeline) Subscribe() (<-chan session.Snapshot, func()) { return p.store.Subscribe() }

// StartRecording begins a new turn, superseding any turn still in flight.
// It returns the new turn ID.
func (p *Pipeline) StartRecording(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	if err := p.capture.Arm(func() { p.autoStop(id) }); err != nil {
		return "", err
	}

	if p.cancelTurn != nil {
		if prev := p.store.Snapshot(); prev.Status.Busy() {
			p.log.Info("superseding turn", "turn_id", prev.TurnID, "status", prev.Status)
			p.opts.Metrics.TurnFinished(outcomeSuperseded)
		}
		p.cancelTurn()
	}

	turnCtx, cancelTurn := context.WithCancel(p.base)
	recCtx, stopRecord := context.WithCancel(turnCtx)
	p.turnID = id
	p.turnCtx = turnCtx
	p.cancelTurn = cancelTurn
	p.stopRecord = stopRecord

	p.store.BeginTurn(id)
	p.log.Info("recording started", "turn_id", id)

	p.spawn(func() { p.tickElapsed(recCtx, id) })
	if p.opts.Input != nil {
		p.spawn(func() { p.runInput(recCtx, id) })
	}
	return id, nil
}

// StopRecording finalizes the recording and hands it to the stages. An empty
// recording ends the turn with a notice instead of an error.
func (p *Pipeline) StopRecording() error {
	return p.stop("")
}

// autoStop ends turn id when capture reaches its maximum duration.
func (p *Pipeline) autoStop(id string) {
	p.log.Info("recording reached max duration, stopping", "turn_id", id)
	if err := p.stop(id); err != nil && !errors.Is(err, ErrNotRecording) && !errors.Is(err, ErrClosed) {
		p.log.Warn("auto stop failed", "turn_id", id, "error", err)
	}
}

// stop stops the current recording; if onlyID is set it must be the current
// turn. The recording is saved and transcription spawned under mu.
func (p *Pipeline) stop(onlyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if onlyID != "" && onlyID != p.turnID {
		return ErrNotRecording
	}
	buf, err := p.capture.Stop()
	if errors.Is(err, capture.ErrNotRecording) {
		return ErrNotRecording
	}
	id, ctx := p.turnID, p.turnCtx
	p.stopRecord()
	p.recordDropped()

	log := p.log.With("turn_id", id)

	if errors.Is(err, capture.ErrEmptyRecording) {
		log.Info("recording stopped with no audio")
		p.store.UpdateTurn(id, func(s *session.Snapshot) {
			s.Status = session.StatusIdle
			s.Notice = session.NoticeNoAudio
		})
		p.opts.Metrics.TurnFinished(outcomeEmpty)
		return nil
	}

	log.Info("recording stopped", "duration", buf.Duration(), "frames", buf.Frames())
	p.opts.Metrics.Recording(buf.Duration())
	p.store.UpdateTurn(id, func(s *session.Snapshot) { s.Status = session.StatusTranscribing })
	p.saveArtifact(id, "audio", func(a Artifacts) error {
		wav, err := buf.WAV()
		if err != nil {
			return err
		}
		return a.SaveAudio(wav)
	})
	p.spawn(func() { p.transcribe(ctx, id, buf) })
	return nil
}

// recordDropped must be called with mu held.
func (p *Pipeline) recordDropped() {
	if p.opts.Metrics == nil {
		return
	}
	dropped := p.capture.Dropped()
	if delta := dropped - p.lastDropped; delta > 0 {
		p.opts.Metrics.FramesDropped.Add(float64(delta))
	}
	p.lastDropped = dropped
}

func (p *Pipeline) tickElapsed(ctx context.Context, id string) {
	t := time.NewTicker(p.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, ok := p.store.UpdateTurn(id, func(s *session.Snapshot) {
				if s.Status == session.StatusRecording {
					s.Elapsed++
				}
			})
			if !ok {
				return
			}
		}
	}
}

func (p *Pipeline) runInput(ctx context.Context, id string) {
	if err := p.opts.Input.Run(ctx, p.capture.OnFrame); err != nil {
		p.log.Error("audio input failed", "turn_id", id, "error", err)
	}
}

func (p *Pipeline) transcribe(ctx context.Context, id string, buf capture.Buffer) {
	tr, err := p.engine.Transcribe(ctx, buf)
	if err != nil {
		p.fail(id, err)
		return
	}
	if !p.publish(id, func(s *session.Snapshot) {
		s.Transcript = tr.Text
		s.Status = session.StatusGenerating
	}) {
		return
	}
	p.log.Info("transcription published", "turn_id", id, "text_length", len(tr.Text), "language", tr.Language)
	p.saveArtifact(id, "transcript", func(a Artifacts) error { return a.SaveTranscript(tr.Text) })

	p.spawn(func() { p.generate(ctx, id, tr) })
}

// generate answers tr and hands the reply on with the language it was asked in.
func (p *Pipeline) generate(ctx context.Context, id string, tr gateway.Transcript) {
	reply, err := p.engine.Generate(ctx, tr.Text)
	if err != nil {
		p.fail(id, err)
		return
	}
	if !p.publish(id, func(s *session.Snapshot) {
		s.Reply = reply
		s.Status = session.StatusSynthesizing
	}) {
		return
	}
	p.log.Info("reply published", "turn_id", id, "reply_length", len(reply))

	p.spawn(func() { p.synthesize(ctx, id, reply, tr.Language) })
}

func (p *Pipeline) synthesize(ctx context.Context, id, text, lang string) {
	ref, err := p.engine.Synthesize(ctx, text, lang)
	if err != nil {
		// The reply stays; only playback is unavailable.
		if p.publish(id, func(s *session.Snapshot) {
			s.Status = session.StatusReady
			s.StageError = err
		}) {
			p.log.Warn("synthesis failed, reply kept without audio", "turn_id", id, "error", err)
			p.opts.Metrics.TurnFinished(outcomeDegraded)
		}
		return
	}
	if !p.publish(id, func(s *session.Snapshot) {
		s.ReplyAudio = ref.WAV
		s.Status = session.StatusReady
	}) {
		return
	}
	p.log.Info("turn ready", "turn_id", id, "reply_audio", ref.Duration)
	p.opts.Metrics.TurnFinished(outcomeReady)
	p.saveArtifact(id, "reply audio", func(a Artifacts) error { return a.SaveReplyAudio(ref.WAV) })
}

// fail ends the turn after a transcription or generation error.
func (p *Pipeline) fail(id string, err error) {
	if p.publish(id, func(s *session.Snapshot) {
		s.Status = session.StatusIdle
		s.StageError = err
	}) {
		p.log.Warn("turn failed", "turn_id", id, "error", err)
		p.opts.Metrics.TurnFinished(outcomeFailed)
	}
}

// publish applies fn if id is still the current turn and the pipeline is open.
func (p *Pipeline) publish(id string, fn func(*session.Snapshot)) bool {
	if p.base.Err() != nil {
		return false
	}
	if _, ok := p.store.UpdateTurn(id, fn); !ok {
		p.log.Debug("discarding result of superseded turn", "turn_id", id)
		return false
	}
	return true
}

func (p *Pipeline) saveArtifact(id, what string, save func(Artifacts) error) {
	if p.opts.Artifacts == nil {
		return
	}
	if err := save(p.opts.Artifacts); err != nil {
		p.log.Warn("saving artifact failed", "turn_id", id, "artifact", what, "error", err)
		p.opts.Metrics.ArtifactFailed(what)
	}
}

func (p *Pipeline) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// PlayReply plays the current turn's synthesized reply, blocking until
// playback ends or ctx is cancelled.
func (p *Pipeline) PlayReply(ctx context.Context) error {
	snap := p.store.Snapshot()
	if !snap.Playable() {
		return ErrNothingToPlay
	}
	if p.opts.Player == nil {
		return ErrNoPlayer
	}
	p.log.Debug("playing reply", "turn_id", snap.TurnID, "bytes", len(snap.ReplyAudio))
	return p.opts.Player.Play(ctx, snap.ReplyAudio)
}

// CopyTranscript returns the current turn's transcript.
func (p *Pipeline) CopyTranscript() (string, error) {
	snap := p.store.Snapshot()
	if snap.Transcript == "" {
		return "", ErrNoTranscript
	}
	return snap.Transcript, nil
}

// Wait blocks until every stage goroutine started so far has finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Close cancels the current turn, discards any recording in progress, and
// waits for stage goroutines to exit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	_, _ = p.capture.Stop()
	p.closeBase()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("pipeline closed")
}
