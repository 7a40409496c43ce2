package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Common errors
var (
	ErrEmptyLogDirectory = errors.New("log directory cannot be empty")

	logDirPerm  os.FileMode = 0o750
	logFilePerm os.FileMode = 0o600
)

// GenerateRunID generates a new UUID v4 for run identification
func GenerateRunID() string {
	return uuid.New().String()
}

// GenerateLogFilename returns "<host>_<UTC timestamp>_<runID>.json" inside dir.
func GenerateLogFilename(dir, runID string, now time.Time) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	timestamp := now.UTC().Format("20060102T150405Z")
	return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", hostname, timestamp, runID))
}

// OpenLogFile creates path for writing. The directory is created if needed;
// an existing file or a symlink at path is refused.
func OpenLogFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir == "" {
		return nil, ErrEmptyLogDirectory
	}
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL | unix.O_NOFOLLOW | unix.O_CLOEXEC
	f, err := os.OpenFile(path, flags, logFilePerm) // #nosec G304 -- path is built by GenerateLogFilename
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
