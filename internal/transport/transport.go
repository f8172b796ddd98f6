// Package transport defines the contract between the pipeline and the
// surfaces that drive it.
//
// Each transport (HTTP/WebSocket, gRPC health, terminal) renders the same
// session state and forwards user intents to the pipeline. None of them
// hold state of their own.
package transport

import (
	"context"

	"github.com/nadzzz/voiceloop/internal/session"
)

// Pipeline is the orchestrator as seen by a transport.
type Pipeline interface {
	StartRecording(ctx context.Context) (string, error)
	StopRecording() error
	PlayReply(ctx context.Context) error
	CopyTranscript() (string, error)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Transport is implemented by every surface adapter.
type Transport interface {
	// Name returns the transport identifier (e.g., "http", "grpc", "terminal").
	Name() string

	// Listen serves the pipeline until ctx is cancelled or the surface ends.
	Listen(ctx context.Context, p Pipeline) error

	// Close gracefully shuts down the transport.
	Close() error
}

// State is the wire form of a session snapshot.
type State struct {
	TurnID         string `json:"turn_id,omitempty"`
	Status         string `json:"status" example:"generating"`
	StatusText     string `json:"status_text" example:"Generating answer..."`
	ElapsedSeconds *int   `json:"elapsed_seconds,omitempty"`
	Transcript     string `json:"transcript,omitempty" example:"hello"`
	Reply          string `json:"reply,omitempty" example:"hi there"`
	Playable       bool   `json:"playable"`
	StageError     string `json:"stage_error,omitempty"`
	Notice         string `json:"notice,omitempty"`
	Version        uint64 `json:"version"`
}

// NewState converts a snapshot to its wire form.
func NewState(s session.Snapshot) State {
	st := State{
		TurnID:     s.TurnID,
		Status:     s.Status.String(),
		StatusText: s.StatusText(),
		Transcript: s.Transcript,
		Reply:      s.Reply,
		Playable:   s.Playable(),
		Notice:     s.Notice,
		Version:    s.Version,
	}
	if n, ok := s.ElapsedSeconds(); ok {
		st.ElapsedSeconds = &n
	}
	if s.StageError != nil {
		st.StageError = s.StageError.Error()
	}
	return st
}
