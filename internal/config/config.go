// Package config loads the TOML configuration of the digest tools.
package config

import (
	"fmt"
	"time"

	"github.com/isseis/go-safe-digest/internal/chunkreader"
	"github.com/isseis/go-safe-digest/internal/coordinator"
	"github.com/isseis/go-safe-digest/internal/extproc"
	"github.com/isseis/go-safe-digest/internal/progress"
)

// EnvConfigPath names the environment variable consulted when no config
// file is given on the command line
const EnvConfigPath = "GO_SAFE_DIGEST_CONFIG"

// Config is the root of the configuration file
type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	External    ExternalConfig    `toml:"external"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Registry    RegistryConfig    `toml:"registry"`
	Log         LogConfig         `toml:"log"`
}

// EngineConfig controls chunked reading and progress reporting
type EngineConfig struct {
	ChunkSize    int  `toml:"chunk_size"`
	ProgressStep int  `toml:"progress_step"`
	Decompress   bool `toml:"decompress"`
}

// ExternalConfig controls external digest executables
type ExternalConfig struct {
	ExecutableDir  string   `toml:"executable_dir"`
	TextTimeout    Duration `toml:"text_timeout"`
	TerminateGrace Duration `toml:"terminate_grace"`
	PollInterval   Duration `toml:"poll_interval"`
}

// CoordinatorConfig controls the background worker
type CoordinatorConfig struct {
	ShutdownWait Duration `toml:"shutdown_wait"`
}

// RegistryConfig locates the algorithm registry file
type RegistryConfig struct {
	Path string `toml:"path"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// Duration is a time.Duration written as a string such as "5s" or "250ms"
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default values for configuration fields
const (
	DefaultLogLevel = "info"
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Engine.ChunkSize == 0 {
		cfg.Engine.ChunkSize = chunkreader.DefaultChunkSize
	}
	if cfg.Engine.ProgressStep == 0 {
		cfg.Engine.ProgressStep = progress.DefaultStep
	}
	if cfg.External.TextTimeout == 0 {
		cfg.External.TextTimeout = Duration(extproc.DefaultTextTimeout)
	}
	if cfg.External.TerminateGrace == 0 {
		cfg.External.TerminateGrace = Duration(extproc.DefaultTerminateGrace)
	}
	if cfg.External.PollInterval == 0 {
		cfg.External.PollInterval = Duration(extproc.DefaultPollInterval)
	}
	if cfg.Coordinator.ShutdownWait == 0 {
		cfg.Coordinator.ShutdownWait = Duration(coordinator.DefaultShutdownWait)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// ExtprocConfig converts the external section for the extproc package.
func (c *Config) ExtprocConfig() extproc.Config {
	return extproc.Config{
		TextTimeout:    c.External.TextTimeout.Std(),
		TerminateGrace: c.External.TerminateGrace.Std(),
		PollInterval:   c.External.PollInterval.Std(),
	}
}
