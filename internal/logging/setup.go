package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/isseis/go-safe-digest/internal/terminal"
)

// LogSchemaVersion is recorded in every JSON run log
const LogSchemaVersion = "1.0.0"

// Options configures Setup
type Options struct {
	// Level is the console level name; the JSON run log always records debug
	Level string

	// Dir enables the JSON run log when non-empty
	Dir string

	// Console receives human-oriented records, normally os.Stderr
	Console io.Writer

	// Capabilities of the console stream
	Capabilities terminal.Capabilities

	// ProgressLine is cleared before console records
	ProgressLine *terminal.ProgressLine

	// RunID identifies this run; generated when empty
	RunID string

	// Component is attached to every record
	Component string
}

// Session is the logging state of one run
type Session struct {
	Logger  *slog.Logger
	RunID   string
	LogPath string

	file *os.File
}

// Setup builds the handlers, installs the logger as slog's default and
// returns the session. Close must be called to flush the run log.
func Setup(opts Options) (*Session, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.RunID == "" {
		opts.RunID = GenerateRunID()
	}

	s := &Session{RunID: opts.RunID}
	handlers := []slog.Handler{
		NewConsoleHandler(opts.Console, ConsoleHandlerOptions{
			Level:        level,
			Capabilities: opts.Capabilities,
			ProgressLine: opts.ProgressLine,
		}),
	}

	if opts.Dir != "" {
		path := GenerateLogFilename(opts.Dir, opts.RunID, time.Now())
		f, err := OpenLogFile(path)
		if err != nil {
			return nil, err
		}
		s.file = f
		s.LogPath = path

		hostname, _ := os.Hostname()
		fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}).
			WithAttrs([]slog.Attr{
				slog.String("hostname", hostname),
				slog.Int("pid", os.Getpid()),
				slog.String("schema_version", LogSchemaVersion),
			})
		handlers = append(handlers, fileHandler)
	}

	logger := slog.New(NewMultiHandler(handlers...)).With("run_id", opts.RunID)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	slog.SetDefault(logger)
	s.Logger = logger
	return s, nil
}

// Close flushes and closes the run log, if any.
func (s *Session) Close() error {
	if s.file == nil {
		return nil
	}
	errSync := s.file.Sync()
	errClose := s.file.Close()
	s.file = nil
	return errors.Join(errSync, errClose)
}
