package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapture(t *testing.T, cfg Config) *Capture {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero sample rate", Config{SampleRate: 0, MaxDuration: time.Second}, true},
		{"negative max duration", Config{SampleRate: 16000, MaxDuration: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Equal(t, tt.wantErr, err != nil, "New() error = %v", err)
		})
	}
}

func TestArmTwiceIsRejected(t *testing.T) {
	c := newTestCapture(t, DefaultConfig())

	require.NoError(t, c.Arm(nil))
	assert.Equal(t, StatusRecording, c.Status())
	assert.ErrorIs(t, c.Arm(nil), ErrAlreadyRecording)
}

func TestStopWithoutArm(t *testing.T) {
	c := newTestCapture(t, DefaultConfig())

	_, err := c.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStopWithZeroFramesIsEmptyRecording(t *testing.T) {
	c := newTestCapture(t, DefaultConfig())
	require.NoError(t, c.Arm(nil))

	buf, err := c.Stop()
	assert.ErrorIs(t, err, ErrEmptyRecording)
	assert.True(t, buf.Empty())
	assert.Equal(t, StatusIdle, c.Status())
}

func TestBufferDurationMatchesFrames(t *testing.T) {
	const rate = 8000
	c := newTestCapture(t, Config{SampleRate: rate, MaxDuration: time.Minute})

	for frames := 1; frames <= 5; frames++ {
		require.NoError(t, c.Arm(nil))
		for i := 0; i < frames; i++ {
			c.OnFrame(make([]int16, rate/10)) // 100ms per frame
		}
		buf, err := c.Stop()
		require.NoError(t, err)

		assert.Equal(t, frames, buf.Frames())
		assert.Equal(t, time.Duration(frames)*100*time.Millisecond, buf.Duration())
		assert.Len(t, buf.Samples(), frames*rate/10)
	}
}

func TestFramesAreConcatenatedInOrder(t *testing.T) {
	c := newTestCapture(t, Config{SampleRate: 4, MaxDuration: time.Minute})
	require.NoError(t, c.Arm(nil))

	chunk := []int16{1, 2}
	c.OnFrame(chunk)
	chunk[0], chunk[1] = 3, 4 // driver reuses its block
	c.OnFrame(chunk)

	buf, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, buf.Samples())
}

func TestArmClearsPreviousFrames(t *testing.T) {
	c := newTestCapture(t, Config{SampleRate: 4, MaxDuration: time.Minute})

	require.NoError(t, c.Arm(nil))
	c.OnFrame([]int16{9, 9})
	_, err := c.Stop()
	require.NoError(t, err)

	require.NoError(t, c.Arm(nil))
	c.OnFrame([]int16{1})
	buf, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, []int16{1}, buf.Samples())
}

func TestFramesOutsideSessionAreDropped(t *testing.T) {
	c := newTestCapture(t, DefaultConfig())

	c.OnFrame([]int16{1, 2, 3})
	assert.Equal(t, int64(1), c.Dropped())

	require.NoError(t, c.Arm(nil))
	_, err := c.Stop()
	assert.ErrorIs(t, err, ErrEmptyRecording)
}

func TestMaxDurationInvokesLimitHandler(t *testing.T) {
	c := newTestCapture(t, Config{SampleRate: 8000, MaxDuration: 20 * time.Millisecond})

	reached := make(chan struct{})
	require.NoError(t, c.Arm(func() { close(reached) }))
	c.OnFrame(make([]int16, 80))

	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("limit handler not called")
	}

	c.OnFrame(make([]int16, 80))
	buf, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Frames(), "frames after the limit must be dropped")
}

func TestStopCancelsLimitTimer(t *testing.T) {
	c := newTestCapture(t, Config{SampleRate: 8000, MaxDuration: 30 * time.Millisecond})

	called := make(chan struct{}, 1)
	require.NoError(t, c.Arm(func() { called <- struct{}{} }))
	_, _ = c.Stop()

	select {
	case <-called:
		t.Fatal("limit handler called after stop")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestConcurrentFramesAndStop(t *testing.T) {
	c := newTestCapture(t, Config{SampleRate: 16000, MaxDuration: time.Minute})

	for round := 0; round < 20; round++ {
		require.NoError(t, c.Arm(nil))

		var wg sync.WaitGroup
		done := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			block := make([]int16, 160)
			for {
				select {
				case <-done:
					return
				default:
					c.OnFrame(block)
				}
			}
		}()

		time.Sleep(time.Millisecond)
		buf, err := c.Stop()
		close(done)
		wg.Wait()

		if err == nil {
			assert.Equal(t, buf.Frames()*160, len(buf.Samples()))
		} else {
			assert.ErrorIs(t, err, ErrEmptyRecording)
		}
	}
}

func TestBufferWAV(t *testing.T) {
	buf := NewBuffer([]int16{1, 2, 3, 4}, 16000)

	wav, err := buf.WAV()
	require.NoError(t, err)
	assert.Len(t, wav, 44+8)
	assert.Equal(t, 1, buf.Frames())
	assert.Equal(t, 16000, buf.SampleRate())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "armed", StatusArmed.String())
	assert.Equal(t, "recording", StatusRecording.String())
	assert.Equal(t, "stopping", StatusStopping.String())
}
