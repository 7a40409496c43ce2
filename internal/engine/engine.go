// Package engine computes digests of text and files.
//
// For every requested algorithm the engine picks a strategy from the
// registry, drives the chunk loop and translates progress into throttled
// percentage reports. Algorithms and inputs are processed sequentially; at
// most one external subprocess is alive at any time.
package engine

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/chunkreader"
	"github.com/isseis/go-safe-digest/internal/digest"
	"github.com/isseis/go-safe-digest/internal/extproc"
	"github.com/isseis/go-safe-digest/internal/progress"
	"github.com/isseis/go-safe-digest/internal/registry"
)

// Options configures an Engine
type Options struct {
	// ChunkSize is the read block size; zero means chunkreader.DefaultChunkSize
	ChunkSize int

	// ProgressStep is the throttle step; zero means progress.DefaultStep
	ProgressStep int

	// ExecutableDir resolves relative executable references
	ExecutableDir string

	// Decompress transparently decompresses .zst and .gz files
	Decompress bool

	// Runner runs external executables; nil creates one with default timing
	Runner *extproc.Runner

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// Engine computes digests using the strategies of a registry
type Engine struct {
	reg    *registry.Registry
	opts   Options
	runner *extproc.Runner
	logger *slog.Logger
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunkreader.DefaultChunkSize
	}
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = progress.DefaultStep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = extproc.NewRunner(extproc.Config{}, extproc.WithLogger(opts.Logger))
	}
	return &Engine{
		reg:    reg,
		opts:   opts,
		runner: runner,
		logger: opts.Logger,
	}
}

// Registry returns the registry the engine dispatches on.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Terminate signals the in-flight subprocess, if any, and reports whether
// one was found. It may be called from any goroutine.
func (e *Engine) Terminate() bool {
	return e.runner.Slot().Terminate()
}

// Busy reports whether a subprocess is currently running.
func (e *Engine) Busy() bool {
	return e.runner.Slot().Active()
}

// strategy is the resolved computation plan for one algorithm.
type strategy struct {
	name       string
	builtin    string
	executable string
	args       []string
	sizeArg    bool
}

func (s strategy) external() bool {
	return s.builtin == ""
}

func (s strategy) argv(size int64) []string {
	args := append([]string(nil), s.args...)
	if s.sizeArg {
		args = append(args, strconv.FormatInt(size, 10))
	}
	return args
}

// plan resolves name. A known built-in is always computed in process, even
// when the registry describes it as an executable.
func (e *Engine) plan(name string) (strategy, error) {
	d, err := e.reg.Lookup(name)
	if err != nil {
		return strategy{}, err
	}
	if d.HasBuiltin() {
		return strategy{name: d.Name, builtin: d.Builtin}, nil
	}

	path, err := extproc.Resolve(e.opts.ExecutableDir, d.Executable)
	if err != nil {
		return strategy{}, calcerrors.WithAlgorithm(err, d.Name)
	}
	return strategy{
		name:       d.Name,
		executable: path,
		args:       d.Args,
		sizeArg:    d.SizeArg,
	}, nil
}

// accumulate feeds every block of r to a new accumulator.
func accumulate(builtin string, r *chunkreader.Reader, cancelled func() bool, observe func()) (string, error) {
	acc, ok := digest.New(builtin)
	if !ok {
		return "", calcerrors.UnknownAlgorithm(builtin)
	}
	for {
		if cancelled() {
			return "", calcerrors.ErrCancelled
		}
		block, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", calcerrors.IOFailure("", err)
		}
		acc.Update(block)
		observe()
	}
	return acc.Sum(), nil
}
