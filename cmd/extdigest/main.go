// Package main provides extdigest, a reference external digest executable.
// It hashes its standard input with a built-in algorithm, reports progress
// on stderr as PROGRESS:<n> lines and writes the hex digest to stdout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/isseis/go-safe-digest/internal/chunkreader"
	"github.com/isseis/go-safe-digest/internal/digest"
	"github.com/isseis/go-safe-digest/internal/progress"
)

// Exit codes
const (
	exitOK        = 0
	exitReadError = 1
	exitUsage     = 2
)

var (
	errUnknownAlgorithm = errors.New("unknown algorithm")
	errInvalidSize      = errors.New("expected size must be a non-negative integer")
	errTooManyArgs      = errors.New("too many arguments")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	algo, size, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	acc, _ := digest.New(algo)
	throttle := progress.NewThrottle(progress.DefaultStep)
	buf := make([]byte, chunkreader.DefaultChunkSize)
	var done int64
	for {
		n, err := stdin.Read(buf)
		if n > 0 {
			acc.Update(buf[:n])
			done += int64(n)
			// Without an expected size only the final 100 is reported.
			if size > 0 {
				if p, ok := throttle.Observe(min(done, size-1), size); ok {
					reportProgress(stderr, p)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: failed to read input: %v\n", err)
			return exitReadError
		}
	}

	if p, ok := throttle.ObservePercent(100); ok {
		reportProgress(stderr, p)
	}
	_, _ = fmt.Fprintln(stdout, acc.Sum())
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (string, int64, error) {
	fs := flag.NewFlagSet("extdigest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s [-algo name] [expected-size] < input\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	algo := fs.String("algo", "sha256", "Built-in algorithm ("+strings.Join(digest.Names(), ", ")+")")
	if err := fs.Parse(args); err != nil {
		return "", 0, err
	}

	if !digest.IsBuiltin(*algo) {
		return "", 0, fmt.Errorf("%w: %s", errUnknownAlgorithm, *algo)
	}

	var size int64
	switch fs.NArg() {
	case 0:
	case 1:
		v, err := strconv.ParseInt(fs.Arg(0), 10, 64)
		if err != nil || v < 0 {
			return "", 0, fmt.Errorf("%w: %q", errInvalidSize, fs.Arg(0))
		}
		size = v
	default:
		return "", 0, errTooManyArgs
	}
	return *algo, size, nil
}

func reportProgress(w io.Writer, percent int) {
	_, _ = fmt.Fprintf(w, "PROGRESS:%d\n", percent)
}
