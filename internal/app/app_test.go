package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voiceloop/internal/config"
	"github.com/nadzzz/voiceloop/internal/session"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voiceloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewWiresPipeline(t *testing.T) {
	cfg := loadConfig(t, "artifacts:\n  output_dir: /turns\n")
	fs := afero.NewMemMapFs()

	a, err := New(cfg, fs)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, session.StatusIdle, a.Pipeline.Snapshot().Status)
	assert.NotNil(t, a.Metrics.Handler())

	exists, err := afero.DirExists(fs, "/turns")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewWithoutArtifacts(t *testing.T) {
	cfg := loadConfig(t, "artifacts:\n  enabled: false\n  output_dir: /turns\n")
	fs := afero.NewMemMapFs()

	a, err := New(cfg, fs)
	require.NoError(t, err)
	defer a.Close()

	exists, err := afero.DirExists(fs, "/turns")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewRejectsBadDrivers(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Audio.Output.Backend = "vlc"
	_, err := New(cfg, afero.NewMemMapFs())
	assert.ErrorContains(t, err, "unknown backend")

	cfg = loadConfig(t, "")
	cfg.Audio.SampleRate = 0
	_, err = New(cfg, afero.NewMemMapFs())
	assert.Error(t, err)
}

func TestNewFailsOnUnwritableArtifactDir(t *testing.T) {
	cfg := loadConfig(t, "artifacts:\n  output_dir: /turns\n")
	_, err := New(cfg, afero.NewReadOnlyFs(afero.NewMemMapFs()))
	assert.ErrorContains(t, err, "artifacts")
}
