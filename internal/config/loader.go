package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/isseis/go-safe-digest/internal/logging"
	"github.com/pelletier/go-toml/v2"
)

// Error definitions for the config package
var (
	// ErrInvalidConfigPath is returned when the config file path is invalid
	ErrInvalidConfigPath = errors.New("invalid config file path")

	// ErrInvalidValue is returned when a field holds an out-of-range value
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Parse decodes and validates TOML content. Unknown keys are rejected so
// that typos do not silently fall back to defaults.
func Parse(content []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses the config file at path. Relative paths inside
// the file are resolved against the file's directory.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, ErrInvalidConfigPath
	}
	content, err := os.ReadFile(path) // #nosec G304 -- config path is operator input
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Registry.Path = resolveRelative(base, cfg.Registry.Path)
	cfg.External.ExecutableDir = resolveRelative(base, cfg.External.ExecutableDir)
	cfg.Log.Dir = resolveRelative(base, cfg.Log.Dir)
	return cfg, nil
}

// Locate returns the config path to use: the explicit path if set, else the
// EnvConfigPath environment variable, else "".
func Locate(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(EnvConfigPath)
}

// Load loads the located config file, or returns Default when there is none.
func Load(explicit string) (*Config, error) {
	path := Locate(explicit)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func resolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks value ranges. It expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Engine.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("%w: engine.chunk_size must be positive, got %d", ErrInvalidValue, cfg.Engine.ChunkSize))
	}
	if cfg.Engine.ProgressStep < 0 || cfg.Engine.ProgressStep > 100 {
		errs = append(errs, fmt.Errorf("%w: engine.progress_step must be within 1-100, got %d", ErrInvalidValue, cfg.Engine.ProgressStep))
	}
	for name, d := range map[string]Duration{
		"external.text_timeout":     cfg.External.TextTimeout,
		"external.terminate_grace":  cfg.External.TerminateGrace,
		"external.poll_interval":    cfg.External.PollInterval,
		"coordinator.shutdown_wait": cfg.Coordinator.ShutdownWait,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidValue, name, d.Std()))
		}
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: log.level: %w", ErrInvalidValue, err))
	}
	return errors.Join(errs...)
}
