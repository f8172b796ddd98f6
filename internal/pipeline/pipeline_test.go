package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voiceloop/internal/artifact"
	"github.com/nadzzz/voiceloop/internal/audio"
	"github.com/nadzzz/voiceloop/internal/capture"
	"github.com/nadzzz/voiceloop/internal/gateway"
	"github.com/nadzzz/voiceloop/internal/llm"
	"github.com/nadzzz/voiceloop/internal/metrics"
	"github.com/nadzzz/voiceloop/internal/session"
	"github.com/nadzzz/voiceloop/internal/stt"
	"github.com/nadzzz/voiceloop/internal/tts"
)

const testRate = 8000

type harness struct {
	p       *Pipeline
	capture *capture.Capture
	stt     *stt.Mock
	llm     *llm.Mock
	tts     *tts.Mock
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, opts Options, capCfg ...capture.Config) *harness {
	t.Helper()
	cfg := capture.Config{SampleRate: testRate, MaxDuration: time.Minute}
	if len(capCfg) > 0 {
		cfg = capCfg[0]
	}
	c, err := capture.New(cfg)
	require.NoError(t, err)

	h := &harness{
		capture: c,
		stt:     &stt.Mock{},
		llm:     &llm.Mock{GenerateFunc: func(context.Context, string) (string, error) { return "hi there", nil }},
		tts:     &tts.Mock{},
		metrics: metrics.New(),
	}
	opts.Metrics = h.metrics
	gw := gateway.New(h.stt, h.llm, h.tts, h.metrics, gateway.Options{Language: "en"})
	h.p = New(c, gw, session.NewStore(), opts)
	t.Cleanup(h.p.Close)
	return h
}

// record runs one turn: start, n one-second frames, stop.
func (h *harness) record(t *testing.T, frames int) string {
	t.Helper()
	id, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		h.capture.OnFrame(make([]int16, testRate))
	}
	require.NoError(t, h.p.StopRecording())
	return id
}

type fakePlayer struct {
	mu     sync.Mutex
	played [][]byte
}

func (f *fakePlayer) Play(_ context.Context, wav []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, wav)
	return nil
}

func TestSynthesisFailureKeepsReply(t *testing.T) {
	h := newHarness(t, Options{})
	var heard time.Duration
	h.stt.TranscribeFunc = func(_ context.Context, wav []byte) (*stt.Result, error) {
		heard, _ = audio.WAVDuration(wav)
		return &stt.Result{Text: "hello"}, nil
	}
	h.tts.SynthesizeFunc = func(context.Context, string, tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
		return nil, errors.New("voice model missing")
	}

	id := h.record(t, 3)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, id, snap.TurnID)
	assert.Equal(t, 3*time.Second, heard)
	assert.Equal(t, "hello", snap.Transcript)
	assert.Equal(t, "hi there", snap.Reply)
	assert.Nil(t, snap.ReplyAudio)
	assert.False(t, snap.Playable())
	assert.ErrorIs(t, snap.StageError, gateway.ErrSynthesis)
	assert.Equal(t, session.StatusReady, snap.Status)

	assert.ErrorIs(t, h.p.PlayReply(context.Background()), ErrNothingToPlay)
}

func TestEmptyRecordingEndsTurnWithNotice(t *testing.T) {
	h := newHarness(t, Options{})

	h.record(t, 0)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusIdle, snap.Status)
	assert.Empty(t, snap.Transcript)
	assert.NoError(t, snap.StageError)
	assert.Equal(t, session.NoticeNoAudio, snap.Notice)
	assert.Equal(t, 0, h.stt.CallCount())
}

func TestTranscriptionFailureSkipsGeneration(t *testing.T) {
	h := newHarness(t, Options{})
	h.stt.TranscribeFunc = func(context.Context, []byte) (*stt.Result, error) {
		return nil, errors.New("whisper down")
	}

	h.record(t, 1)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusIdle, snap.Status)
	assert.ErrorIs(t, snap.StageError, gateway.ErrTranscription)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, 0, h.llm.CallCount())
	assert.Equal(t, 0, h.tts.CallCount())
}

func TestGenerationFailureSkipsSynthesis(t *testing.T) {
	h := newHarness(t, Options{})
	h.llm.GenerateFunc = func(context.Context, string) (string, error) { return "", errors.New("model busy") }

	h.record(t, 1)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusIdle, snap.Status)
	assert.ErrorIs(t, snap.StageError, gateway.ErrGeneration)
	assert.Equal(t, "hello", snap.Transcript, "transcript is not rolled back")
	assert.Empty(t, snap.Reply)
	assert.Equal(t, 0, h.tts.CallCount())
}

func TestSuccessfulTurn(t *testing.T) {
	player := &fakePlayer{}
	fs := afero.NewMemMapFs()
	store, err := artifact.New(fs, "/out")
	require.NoError(t, err)
	h := newHarness(t, Options{Player: player, Artifacts: store})

	_, err = h.p.CopyTranscript()
	assert.ErrorIs(t, err, ErrNoTranscript)

	h.record(t, 2)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusReady, snap.Status)
	assert.NoError(t, snap.StageError)
	assert.True(t, snap.Playable())
	assert.Equal(t, []string{"hello"}, h.llm.Prompts())

	text, err := h.p.CopyTranscript()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	require.NoError(t, h.p.PlayReply(context.Background()))
	require.Len(t, player.played, 1)
	assert.Equal(t, snap.ReplyAudio, player.played[0])

	for _, name := range []string{artifact.AudioFile, artifact.TranscriptFile, artifact.ReplyAudioFile} {
		ok, err := afero.Exists(fs, "/out/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	transcript, err := store.Load(artifact.TranscriptFile)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(transcript))
}

func TestPlayReplyWithoutPlayer(t *testing.T) {
	h := newHarness(t, Options{})
	h.record(t, 1)
	h.p.Wait()

	assert.ErrorIs(t, h.p.PlayReply(context.Background()), ErrNoPlayer)
}

func TestNewTurnSupersedesPendingStages(t *testing.T) {
	h := newHarness(t, Options{})
	release := make(chan struct{})
	var calls atomic.Int32
	h.stt.TranscribeFunc = func(ctx context.Context, _ []byte) (*stt.Result, error) {
		if calls.Add(1) == 1 {
			<-release
			return &stt.Result{Text: "stale"}, nil
		}
		return &stt.Result{Text: "fresh"}, nil
	}

	first := h.record(t, 1)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	second := h.record(t, 1)
	require.NotEqual(t, first, second)
	require.Eventually(t, func() bool { return h.p.Snapshot().Status == session.StatusReady }, time.Second, time.Millisecond)

	close(release)
	h.p.Wait()

	snap := h.p.Snapshot()
	assert.Equal(t, second, snap.TurnID)
	assert.Equal(t, "fresh", snap.Transcript)
	assert.Equal(t, []string{"fresh"}, h.llm.Prompts())
}

func TestSupersededTranscriptionKeepsCurrentLanguage(t *testing.T) {
	h := newHarness(t, Options{})
	release := make(chan struct{})
	var calls atomic.Int32
	h.stt.TranscribeFunc = func(context.Context, []byte) (*stt.Result, error) {
		if calls.Add(1) == 1 {
			<-release
			return &stt.Result{Text: "stale", Language: "de"}, nil
		}
		return &stt.Result{Text: "fresh", Language: "fr"}, nil
	}
	transcribed := func() float64 {
		return testutil.ToFloat64(h.metrics.StageRequests.WithLabelValues("transcribe", "success"))
	}
	h.llm.GenerateFunc = func(_ context.Context, prompt string) (string, error) {
		if prompt == "fresh" {
			close(release)
			deadline := time.Now().Add(time.Second)
			for transcribed() < 2 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		}
		return "hi there", nil
	}

	h.record(t, 1)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	second := h.record(t, 1)
	h.p.Wait()

	assert.Equal(t, 2.0, transcribed())
	snap := h.p.Snapshot()
	assert.Equal(t, second, snap.TurnID)
	assert.Equal(t, session.StatusReady, snap.Status)
	assert.Equal(t, "fresh", snap.Transcript)
	assert.Equal(t, 1, h.tts.CallCount())
	assert.Equal(t, "fr", h.tts.LastOpts().Language)
}

func TestAudioArtifactBelongsToCurrentTurn(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := artifact.New(fs, "/out")
	require.NoError(t, err)
	h := newHarness(t, Options{Artifacts: store})
	release := make(chan struct{})
	var calls atomic.Int32
	h.stt.TranscribeFunc = func(context.Context, []byte) (*stt.Result, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return &stt.Result{Text: "hello"}, nil
	}
	saved := func() time.Duration {
		wav, err := store.Load(artifact.AudioFile)
		require.NoError(t, err)
		d, err := audio.WAVDuration(wav)
		require.NoError(t, err)
		return d
	}

	h.record(t, 1)
	assert.Equal(t, time.Second, saved())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	h.record(t, 2)
	assert.Equal(t, 2*time.Second, saved())

	close(release)
	h.p.Wait()
	assert.Equal(t, 2*time.Second, saved())
}

func TestSupersededTurnContextIsCancelled(t *testing.T) {
	h := newHarness(t, Options{})
	cancelled := make(chan struct{})
	var calls atomic.Int32
	h.llm.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
			return "", ctx.Err()
		}
		return "second reply", nil
	}

	h.record(t, 1)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("superseded turn context not cancelled")
	}
	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusRecording, snap.Status)
	assert.NoError(t, snap.StageError)
}

func TestElapsedTicksOnlyWhileRecording(t *testing.T) {
	h := newHarness(t, Options{TickInterval: 10 * time.Millisecond})
	updates, cancel := h.p.Subscribe()
	defer cancel()

	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)

	last := 0
	for last < 3 {
		select {
		case snap := <-updates:
			n, ok := snap.ElapsedSeconds()
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, n, last, "elapsed never goes backwards")
			last = n
		case <-time.After(time.Second):
			t.Fatalf("elapsed stuck at %d", last)
		}
	}

	h.capture.OnFrame(make([]int16, testRate))
	require.NoError(t, h.p.StopRecording())

	snap := h.p.Snapshot()
	_, ok := snap.ElapsedSeconds()
	assert.False(t, ok)
	assert.Zero(t, snap.Elapsed)

	time.Sleep(30 * time.Millisecond)
	h.p.Wait()
	assert.Zero(t, h.p.Snapshot().Elapsed)
}

func TestIntentsRejectedInWrongState(t *testing.T) {
	h := newHarness(t, Options{})

	assert.ErrorIs(t, h.p.StopRecording(), ErrNotRecording)

	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)
	_, err = h.p.StartRecording(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.p.StartRecording(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaxDurationStopsRecording(t *testing.T) {
	h := newHarness(t, Options{}, capture.Config{SampleRate: testRate, MaxDuration: 30 * time.Millisecond})

	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)
	h.capture.OnFrame(make([]int16, testRate/10))

	require.Eventually(t, func() bool {
		return h.p.Snapshot().Status == session.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", h.p.Snapshot().Transcript)
	assert.ErrorIs(t, h.p.StopRecording(), ErrNotRecording)
}

type fakeInput struct {
	runs atomic.Int32
}

func (f *fakeInput) Run(ctx context.Context, onFrame audio.FrameHandler) error {
	f.runs.Add(1)
	block := make([]int16, testRate/100)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			onFrame(block)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestInputRunsDuringRecording(t *testing.T) {
	in := &fakeInput{}
	h := newHarness(t, Options{Input: in})

	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.p.StopRecording())
	h.p.Wait()

	assert.Equal(t, int32(1), in.runs.Load())
	snap := h.p.Snapshot()
	assert.Equal(t, session.StatusReady, snap.Status)
	assert.Equal(t, 1, h.stt.CallCount())
}

func TestCloseRejectsNewTurns(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)

	h.p.Close()
	h.p.Close()

	_, err = h.p.StartRecording(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStopAfterCloseStartsNoStage(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.p.StartRecording(context.Background())
	require.NoError(t, err)
	h.capture.OnFrame(make([]int16, testRate))

	h.p.Close()

	assert.ErrorIs(t, h.p.StopRecording(), ErrClosed)
	h.p.Wait()
	assert.Equal(t, 0, h.stt.CallCount())
}
