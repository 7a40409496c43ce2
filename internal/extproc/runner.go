// Package extproc computes digests with external executables.
//
// An executable receives raw input on stdin, may report "PROGRESS:<n>" lines
// on stderr and writes the digest on stdout before exiting with status 0.
// A Runner owns at most one live subprocess at a time and guarantees that
// it is terminated on every exit path.
package extproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
)

// Error definitions
var (
	ErrEmptyExecutable = errors.New("executable reference cannot be empty")
	ErrNotRegularFile  = errors.New("executable is not a regular file")
	ErrInputClosed     = errors.New("executable closed its input before all data was written")
	ErrEmptyDigest     = errors.New("executable produced no digest")
)

// Runner spawns digest executables. Runs are serialized: a second run waits
// until the first has fully terminated.
type Runner struct {
	cfg    Config
	slot   *Slot
	sem    chan struct{}
	logger *slog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger used for subprocess lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner. Zero Config fields take their defaults.
func NewRunner(cfg Config, opts ...Option) *Runner {
	cfg = cfg.WithDefaults()
	r := &Runner{
		cfg:    cfg,
		slot:   &Slot{grace: cfg.TerminateGrace},
		sem:    make(chan struct{}, 1),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Slot returns the handle of the currently tracked subprocess.
func (r *Runner) Slot() *Slot {
	return r.slot
}

// Resolve turns an executable reference into a path. Relative references
// are resolved against dir. The result must name an existing regular file.
func Resolve(dir, executable string) (string, error) {
	if executable == "" {
		return "", calcerrors.ExecutableMissing("", executable, ErrEmptyExecutable)
	}

	path := executable
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, executable)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return "", calcerrors.ExecutableMissing("", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", calcerrors.ExecutableMissing("", path, ErrNotRegularFile)
	}
	return path, nil
}

// acquire waits for the previous run to finish.
func (r *Runner) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return calcerrors.ErrCancelled
	}
}

func (r *Runner) release() {
	<-r.sem
}

// spawn starts path and publishes it in the slot. The returned cleanup
// terminates the process if it is still running, waits for it and clears
// the slot; it must be called on every path.
func (r *Runner) spawn(cmd *exec.Cmd) (*process, func(), error) {
	prepare(cmd, r.cfg.TerminateGrace)

	p, err := start(cmd)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, calcerrors.ExecutableMissing("", cmd.Path, err)
		}
		return nil, nil, calcerrors.ProcessFailure("", calcerrors.ExitCodeUnknown, fmt.Errorf("failed to start %s: %w", cmd.Path, err))
	}

	r.slot.set(p)
	r.logger.Debug("Subprocess started", "path", cmd.Path, "pid", p.pid)

	cleanup := func() {
		if !p.exited() {
			r.logger.Debug("Terminating subprocess", "pid", p.pid)
			p.terminate(r.cfg.TerminateGrace)
		}
		<-p.done
		r.slot.clear(p)
		r.logger.Debug("Subprocess finished", "pid", p.pid, "exit_code", p.exitCode())
	}
	return p, cleanup, nil
}

// RunWhole writes all of input to the executable, closes its input and waits
// for it to exit within the configured TextTimeout. The trimmed standard
// output is the digest.
func (r *Runner) RunWhole(ctx context.Context, path string, args []string, input []byte) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	// #nosec G204 -- path comes from the algorithm registry and was resolved by Resolve
	cmd := exec.Command(path, args...)
	var stdout bytes.Buffer
	diag := &diagnosticWriter{}
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = diag

	p, cleanup, err := r.spawn(cmd)
	if err != nil {
		return "", err
	}
	defer cleanup()

	timer := time.NewTimer(r.cfg.TextTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		r.logger.Warn("Subprocess timed out", "path", path, "pid", p.pid, "timeout", r.cfg.TextTimeout)
		return "", calcerrors.Timeout("")
	case <-ctx.Done():
		return "", calcerrors.ErrCancelled
	}

	return r.finish(p, &stdout, diag)
}

// finish interprets the exit of p. It must only be called after done is closed.
func (r *Runner) finish(p *process, stdout *bytes.Buffer, diag *diagnosticWriter) (string, error) {
	diag.flush()
	if detail := diag.diagnostics(); detail != "" {
		r.logger.Debug("Subprocess diagnostics", "pid", p.pid, "output", detail)
	}
	if p.err != nil {
		code := p.exitCode()
		cause := p.err
		if detail := diag.diagnostics(); detail != "" {
			cause = errors.New(detail)
			if code == calcerrors.ExitCodeUnknown {
				cause = fmt.Errorf("%w: %s", p.err, detail)
			}
		} else if code != calcerrors.ExitCodeUnknown {
			cause = nil
		}
		return "", calcerrors.ProcessFailure("", code, cause)
	}

	digest := strings.TrimSpace(stdout.String())
	if digest == "" {
		return "", calcerrors.ProcessFailure("", p.exitCode(), ErrEmptyDigest)
	}
	return digest, nil
}
