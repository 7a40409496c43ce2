// Package main provides the hashcalc command. It computes digests of text or
// files with built-in algorithms or external executables, showing progress
// while large files are processed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/config"
	"github.com/isseis/go-safe-digest/internal/coordinator"
	"github.com/isseis/go-safe-digest/internal/engine"
	"github.com/isseis/go-safe-digest/internal/extproc"
	"github.com/isseis/go-safe-digest/internal/logging"
	"github.com/isseis/go-safe-digest/internal/registry"
	"github.com/isseis/go-safe-digest/internal/terminal"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

var (
	errNoInput       = errors.New("provide -text or at least one file")
	errTextWithFiles = errors.New("-text and file arguments are mutually exclusive")
)

type options struct {
	configPath string
	registry   string
	execDir    string
	algorithms []string
	text       string
	textSet    bool
	files      []string
	decompress bool
	logLevel   string
	logDir     string
	list       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		// flag has already printed usage for its own parse errors
		if errors.Is(err, errTextWithFiles) {
			printUsage(fs, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitFailure
	}
	applyOverrides(cfg, opts)

	caps := terminal.Detect(stderr, terminal.Options{})
	// The worker logs to stderr while this goroutine prints results to it.
	stderr = &lockedWriter{w: stderr}
	line := terminal.NewProgressLine(stderr, caps)
	session, err := logging.Setup(logging.Options{
		Level:        cfg.Log.Level,
		Dir:          cfg.Log.Dir,
		Console:      stderr,
		Capabilities: caps,
		ProgressLine: line,
		Component:    "hashcalc",
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error setting up logging: %v\n", err)
		return exitFailure
	}
	defer func() { _ = session.Close() }()
	logger := session.Logger

	registry.SetDefaultPath(cfg.Registry.Path)
	reg := registry.Default()
	if opts.list {
		printAlgorithms(reg, stdout)
		return exitOK
	}
	if !opts.textSet && len(opts.files) == 0 {
		printUsage(fs, stderr)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", errNoInput)
		return exitFailure
	}

	algorithms := opts.algorithms
	if len(algorithms) == 0 {
		algorithms = reg.Names()
	}

	runner := extproc.NewRunner(cfg.ExtprocConfig(), extproc.WithLogger(logger))
	eng := engine.New(reg, engine.Options{
		ChunkSize:     cfg.Engine.ChunkSize,
		ProgressStep:  cfg.Engine.ProgressStep,
		ExecutableDir: cfg.External.ExecutableDir,
		Decompress:    cfg.Engine.Decompress,
		Runner:        runner,
		Logger:        logger,
	})
	coord := coordinator.New(eng, coordinator.Options{
		ShutdownWait: cfg.Coordinator.ShutdownWait.Std(),
		Logger:       logger,
	})

	if opts.textSet {
		return calculateText(ctx, eng, algorithms, opts.text, stdout, stderr)
	}
	return calculateFiles(ctx, coord, algorithms, opts.files, line, stdout, stderr, logger)
}

func parseArgs(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	var algorithms string

	fs := flag.NewFlagSet("hashcalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs, stderr) }
	fs.StringVar(&opts.configPath, "config", "", "Path to the TOML config file (default: $"+config.EnvConfigPath+")")
	fs.StringVar(&opts.registry, "registry", "", "Path to the algorithm registry (.json, .jsonc, .toml, .yaml)")
	fs.StringVar(&opts.execDir, "exec-dir", "", "Directory containing external digest executables")
	fs.StringVar(&algorithms, "a", "", "Comma-separated algorithm names (default: every registered algorithm)")
	fs.StringVar(&opts.text, "text", "", "Compute digests of this text instead of files")
	fs.BoolVar(&opts.decompress, "decompress", false, "Transparently decompress .zst and .gz files")
	fs.StringVar(&opts.logLevel, "log-level", "", "Console log level: debug, info, warn, error")
	fs.StringVar(&opts.logDir, "log-dir", "", "Directory for the JSON run log")
	fs.BoolVar(&opts.list, "list", false, "List the registered algorithms and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "text" {
			opts.textSet = true
		}
	})

	for _, name := range strings.Split(algorithms, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.algorithms = append(opts.algorithms, name)
		}
	}
	opts.files = fs.Args()
	if opts.textSet && len(opts.files) > 0 {
		return nil, fs, errTextWithFiles
	}
	return opts, fs, nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	if fs == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Usage: %s [flags] (-text <text> | <file> [<file>...])\n", filepath.Base(os.Args[0]))
	fs.PrintDefaults()
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.registry != "" {
		cfg.Registry.Path = opts.registry
	}
	if opts.execDir != "" {
		cfg.External.ExecutableDir = opts.execDir
	}
	if opts.decompress {
		cfg.Engine.Decompress = true
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logDir != "" {
		cfg.Log.Dir = opts.logDir
	}
}

func printAlgorithms(reg *registry.Registry, w io.Writer) {
	for _, name := range reg.Names() {
		d, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		detail := d.Kind.String()
		if d.Kind == registry.KindExternalExecutable {
			detail += " " + d.Executable
		}
		_, _ = fmt.Fprintf(w, "%-16s %s\n", name, detail)
	}
}

func printError(w io.Writer, prefix string, err error) {
	_, _ = fmt.Fprintf(w, "%sError: %v\n", prefix, err)
	var ce *calcerrors.CalculationError
	if errors.As(err, &ce) {
		if hint := ce.Hint(); hint != "" {
			_, _ = fmt.Fprintf(w, "%sHint: %s\n", prefix, hint)
		}
	}
}

// lockedWriter serializes writes from the worker's logger and the event loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
