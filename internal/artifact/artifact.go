// Package artifact persists the last turn's recording, transcript, and
// synthesized reply to a directory. Each turn overwrites the previous files.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// File names written under the output directory.
const (
	AudioFile      = "audio.wav"
	TranscriptFile = "transcript.txt"
	ReplyAudioFile = "tts.wav"
)

// Store writes artifacts atomically: data goes to a temp file that is then
// renamed over the target, so readers never see a partial file.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates a store rooted at dir on fs. Use afero.NewOsFs() in production.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// SaveAudio writes the captured recording.
func (s *Store) SaveAudio(wav []byte) error { return s.write(AudioFile, wav) }

// SaveTranscript writes the transcript text.
func (s *Store) SaveTranscript(text string) error { return s.write(TranscriptFile, []byte(text)) }

// SaveReplyAudio writes the synthesized reply.
func (s *Store) SaveReplyAudio(wav []byte) error { return s.write(ReplyAudioFile, wav) }

// Load reads a previously written artifact.
func (s *Store) Load(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, filepath.Join(s.dir, name))
}

func (s *Store) write(name string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	_ = s.fs.Chmod(target, os.FileMode(0o644))

	slog.Debug("artifact saved", "path", target, "bytes", len(data))
	return nil
}
