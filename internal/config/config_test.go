package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/isseis/go-safe-digest/internal/chunkreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, chunkreader.DefaultChunkSize, cfg.Engine.ChunkSize)
	assert.Equal(t, 5, cfg.Engine.ProgressStep)
	assert.Equal(t, 5*time.Second, cfg.External.TextTimeout.Std())
	assert.Equal(t, time.Second, cfg.External.TerminateGrace.Std())
	assert.Equal(t, 2*time.Second, cfg.Coordinator.ShutdownWait.Std())
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, Validate(cfg))
}

func TestParse(t *testing.T) {
	content := `
[engine]
chunk_size = 4096
decompress = true

[external]
executable_dir = "/opt/hashers"
text_timeout = "750ms"

[coordinator]
shutdown_wait = "3s"

[registry]
path = "/etc/algorithms.json"

[log]
level = "debug"
`
	cfg, err := Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.Engine.ChunkSize)
	assert.Equal(t, 5, cfg.Engine.ProgressStep)
	assert.True(t, cfg.Engine.Decompress)
	assert.Equal(t, "/opt/hashers", cfg.External.ExecutableDir)
	assert.Equal(t, 750*time.Millisecond, cfg.External.TextTimeout.Std())
	assert.Equal(t, time.Second, cfg.External.TerminateGrace.Std())
	assert.Equal(t, 3*time.Second, cfg.Coordinator.ShutdownWait.Std())
	assert.Equal(t, "/etc/algorithms.json", cfg.Registry.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	ext := cfg.ExtprocConfig()
	assert.Equal(t, 750*time.Millisecond, ext.TextTimeout)
	assert.Equal(t, 50*time.Millisecond, ext.PollInterval)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"unknown key", "[engine]\nchunk = 1\n", nil},
		{"bad duration", "[external]\ntext_timeout = \"soon\"\n", nil},
		{"negative chunk size", "[engine]\nchunk_size = -1\n", ErrInvalidValue},
		{"step above 100", "[engine]\nprogress_step = 101\n", ErrInvalidValue},
		{"negative duration", "[coordinator]\nshutdown_wait = \"-1s\"\n", ErrInvalidValue},
		{"bad log level", "[log]\nlevel = \"loud\"\n", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.toml")
	content := "[registry]\npath = \"algorithms.yaml\"\n[external]\nexecutable_dir = \"bin\"\n[log]\ndir = \"/var/log/digest\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "algorithms.yaml"), cfg.Registry.Path)
	assert.Equal(t, filepath.Join(dir, "bin"), cfg.External.ExecutableDir)
	assert.Equal(t, "/var/log/digest", cfg.Log.Dir)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile("")
	assert.ErrorIs(t, err, ErrInvalidConfigPath)

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadUsesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nprogress_step = 10\n"), 0o600))

	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.ProgressStep)

	assert.Equal(t, "explicit.toml", Locate("explicit.toml"))

	t.Setenv(EnvConfigPath, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
