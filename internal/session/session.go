// Package session holds the conversation state shared between the pipeline
// goroutines and the surfaces that render it.
//
// All mutation goes through Store, which applies each update under a single
// mutex and publishes the result as an immutable Snapshot value.
package session

import (
	"fmt"
	"sync"
)

// Status is the pipeline status of the current turn.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusTranscribing
	StatusGenerating
	StatusSynthesizing
	StatusReady
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusRecording:    "recording",
	StatusTranscribing: "transcribing",
	StatusGenerating:   "generating",
	StatusSynthesizing: "synthesizing",
	StatusReady:        "ready",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Busy reports whether a stage goroutine is working on the turn.
func (s Status) Busy() bool {
	return s == StatusTranscribing || s == StatusGenerating || s == StatusSynthesizing
}

// NoticeNoAudio is shown when a recording stopped before any audio arrived.
const NoticeNoAudio = "No audio recorded."

// Snapshot is a consistent, read-only view of the session.
type Snapshot struct {
	// Version increases by one with every published update.
	Version uint64

	TurnID string
	Status Status

	// Elapsed is the whole seconds spent recording. Only meaningful while
	// Status is StatusRecording.
	Elapsed int

	Transcript string
	Reply      string

	// ReplyAudio is the synthesized reply as WAV. Shared between snapshots;
	// must not be modified.
	ReplyAudio []byte

	// StageError is the failure that ended or degraded the turn, if any.
	StageError error

	Notice string
}

// ElapsedSeconds returns the recording time and whether it applies.
func (s Snapshot) ElapsedSeconds() (int, bool) {
	if s.Status != StatusRecording {
		return 0, false
	}
	return s.Elapsed, true
}

// Playable reports whether synthesized audio is available for the reply.
func (s Snapshot) Playable() bool { return len(s.ReplyAudio) > 0 }

// StatusText renders the status line shown to the user.
func (s Snapshot) StatusText() string {
	switch s.Status {
	case StatusRecording:
		return fmt.Sprintf("Recording: %ds", s.Elapsed)
	case StatusTranscribing:
		return "Transcribing..."
	case StatusGenerating:
		return "Generating answer..."
	case StatusSynthesizing:
		return "Synthesizing speech..."
	case StatusReady:
		if s.StageError != nil {
			return "Ready (no audio)"
		}
		return "Ready"
	default:
		if s.Notice != "" {
			return s.Notice
		}
		return "Idle"
	}
}

// Store is the single owner of session state.
type Store struct {
	mu      sync.Mutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// NewStore creates an idle store.
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns the latest published state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe returns a channel receiving the latest snapshot after each
// update. A slow reader only ever misses intermediate snapshots, never the
// most recent one. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- s.current
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// BeginTurn discards the previous turn and starts turnID in the recording state.
func (s *Store) BeginTurn(turnID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Snapshot{
		Version: s.current.Version,
		TurnID:  turnID,
		Status:  StatusRecording,
	}
	return s.publish()
}

// Update applies fn to the state unconditionally.
func (s *Store) Update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.current)
	return s.publish()
}

// UpdateTurn applies fn only if turnID is still the current turn. It reports
// whether the update was applied; results of superseded turns are dropped.
func (s *Store) UpdateTurn(turnID string, fn func(*Snapshot)) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.TurnID != turnID {
		return s.current, false
	}
	fn(&s.current)
	return s.publish(), true
}

// publish must be called with mu held.
func (s *Store) publish() Snapshot {
	s.current.Version++
	if s.current.Status != StatusRecording {
		s.current.Elapsed = 0
	}
	snap := s.current
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return snap
}
