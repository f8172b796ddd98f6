package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/nadzzz/voiceloop/internal/session"
)

// Formatter renders session changes as terminal lines.
type Formatter struct {
	mu       sync.Mutex
	w        io.Writer
	prev     session.Snapshot
	inLine   bool // a "\r"-rewritten recording line is open
	rendered bool
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// Help prints the command list.
func (f *Formatter) Help() {
	f.println("Commands: r = record, s = stop, p = play reply, c = copy transcript, q = quit")
}

// Transcript prints the copied transcript.
func (f *Formatter) Transcript(text string) {
	f.println("Transcript: " + text)
}

// Error prints a failed intent.
func (f *Formatter) Error(err error) {
	f.println("Error: " + err.Error())
}

// Info prints an informational line.
func (f *Formatter) Info(msg string) {
	f.println(msg)
}

// Render prints what changed between the previous snapshot and snap.
func (f *Formatter) Render(snap session.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.prev
	f.prev = snap
	if f.rendered && snap.Version == prev.Version {
		return
	}
	first := !f.rendered
	f.rendered = true
	if first && snap.Status == session.StatusIdle && snap.TurnID == "" {
		return
	}

	sameTurn := !first && snap.TurnID == prev.TurnID

	if snap.Status == session.StatusRecording {
		fmt.Fprintf(f.w, "\r%s", snap.StatusText())
		f.inLine = true
		return
	}

	if !sameTurn || snap.Status != prev.Status {
		switch snap.Status {
		case session.StatusTranscribing, session.StatusGenerating, session.StatusSynthesizing:
			f.lineLocked(snap.StatusText())
		}
	}
	if snap.Transcript != "" && (!sameTurn || prev.Transcript == "") {
		f.lineLocked("You: " + snap.Transcript)
	}
	if snap.Reply != "" && (!sameTurn || prev.Reply == "") {
		f.lineLocked("Assistant: " + snap.Reply)
	}
	if snap.StageError != nil && (!sameTurn || prev.StageError == nil) {
		f.lineLocked("Error: " + snap.StageError.Error())
	}
	if snap.Notice != "" && (!sameTurn || prev.Notice == "") {
		f.lineLocked(snap.Notice)
	}
	if snap.Status == session.StatusReady && (!sameTurn || prev.Status != session.StatusReady) {
		if snap.Playable() {
			f.lineLocked("Ready. Press p to play the reply.")
		} else {
			f.lineLocked("Ready (reply audio unavailable).")
		}
	}
}

func (f *Formatter) println(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineLocked(s)
}

// lineLocked must be called with mu held.
func (f *Formatter) lineLocked(s string) {
	if f.inLine {
		fmt.Fprintln(f.w)
		f.inLine = false
	}
	fmt.Fprintln(f.w, s)
}
