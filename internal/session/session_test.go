package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginTurnResetsPreviousTurn(t *testing.T) {
	s := NewStore()
	s.BeginTurn("a")
	s.Update(func(snap *Snapshot) {
		snap.Transcript = "hello"
		snap.Reply = "hi"
		snap.StageError = errors.New("boom")
		snap.Status = StatusReady
	})

	snap := s.BeginTurn("b")
	assert.Equal(t, "b", snap.TurnID)
	assert.Equal(t, StatusRecording, snap.Status)
	assert.Empty(t, snap.Transcript)
	assert.Empty(t, snap.Reply)
	assert.NoError(t, snap.StageError)
	assert.Equal(t, uint64(3), snap.Version)
}

func TestUpdateTurnDropsStaleTurn(t *testing.T) {
	s := NewStore()
	s.BeginTurn("old")
	s.BeginTurn("new")

	_, ok := s.UpdateTurn("old", func(snap *Snapshot) { snap.Transcript = "late" })
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot().Transcript)

	snap, ok := s.UpdateTurn("new", func(snap *Snapshot) { snap.Transcript = "fresh" })
	assert.True(t, ok)
	assert.Equal(t, "fresh", snap.Transcript)
}

func TestElapsedOnlyWhileRecording(t *testing.T) {
	s := NewStore()
	s.BeginTurn("t")
	snap := s.Update(func(snap *Snapshot) { snap.Elapsed = 2 })

	n, ok := snap.ElapsedSeconds()
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Recording: 2s", snap.StatusText())

	snap = s.Update(func(snap *Snapshot) { snap.Status = StatusTranscribing })
	_, ok = snap.ElapsedSeconds()
	assert.False(t, ok)
	assert.Zero(t, snap.Elapsed)
}

func TestSubscribeReceivesLatest(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, StatusIdle, initial.Status)

	s.BeginTurn("t")
	s.Update(func(snap *Snapshot) { snap.Status = StatusTranscribing })
	s.Update(func(snap *Snapshot) { snap.Status = StatusGenerating })

	latest := <-ch
	assert.Equal(t, StatusGenerating, latest.Status)
	assert.Equal(t, uint64(3), latest.Version)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	s.Update(func(snap *Snapshot) { snap.Notice = NoticeNoAudio })
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(snap *Snapshot) { snap.Elapsed++ })
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(50), s.Snapshot().Version)
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want string
	}{
		{Snapshot{}, "Idle"},
		{Snapshot{Notice: NoticeNoAudio}, NoticeNoAudio},
		{Snapshot{Status: StatusGenerating}, "Generating answer..."},
		{Snapshot{Status: StatusReady, ReplyAudio: []byte{1}}, "Ready"},
		{Snapshot{Status: StatusReady, StageError: errors.New("x")}, "Ready (no audio)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.snap.StatusText())
	}
}

func TestStatusMarshalText(t *testing.T) {
	b, err := StatusSynthesizing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "synthesizing", string(b))
	assert.True(t, StatusSynthesizing.Busy())
	assert.False(t, StatusReady.Busy())
}
