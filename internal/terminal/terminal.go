// Package terminal decides how progress and log output are rendered on the
// diagnostic stream: as a single updating line on an interactive terminal,
// or as plain log records when piped or running under CI.
package terminal

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars contains common CI environment variables
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"TRAVIS",
	"CIRCLECI",
	"JENKINS_URL",
	"BUILD_NUMBER",
	"GITLAB_CI",
	"APPVEYOR",
	"BUILDKITE",
	"DRONE",
	"TF_BUILD",
}

// colorTerminals lists TERM values (or prefixes) known to support ANSI colors
var colorTerminals = []string{
	"xterm", "screen", "tmux", "rxvt", "vt100", "vt220", "ansi", "linux", "cygwin", "putty",
}

// Options overrides environment detection
type Options struct {
	ForceInteractive    bool
	ForceNonInteractive bool
	ForceColor          bool
	DisableColor        bool
}

// Capabilities describes the diagnostic stream
type Capabilities struct {
	// Interactive means progress may be redrawn in place
	Interactive bool

	// Color means ANSI color sequences may be written
	Color bool
}

// Detect inspects the environment and w, normally os.Stderr.
func Detect(w io.Writer, opts Options) Capabilities {
	interactive := isInteractive(w, opts)
	return Capabilities{
		Interactive: interactive,
		Color:       colorEnabled(interactive, opts),
	}
}

func isInteractive(w io.Writer, opts Options) bool {
	switch {
	case opts.ForceInteractive:
		return true
	case opts.ForceNonInteractive:
		return false
	case IsCIEnvironment():
		return false
	}
	return IsTerminal(w)
}

// IsTerminal reports whether w is a file connected to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) // #nosec G115 -- file descriptors fit in int
}

// IsCIEnvironment reports whether a CI system is detected. CI=false, CI=0
// and CI=no do not count.
func IsCIEnvironment() bool {
	for _, name := range ciEnvVars {
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		if name == "CI" {
			return !isFalsy(value)
		}
		return true
	}
	return false
}

// colorEnabled applies, in order: explicit options, CLICOLOR_FORCE,
// NO_COLOR, then CLICOLOR and TERM on interactive streams only.
func colorEnabled(interactive bool, opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.DisableColor {
		return false
	}
	if isTruthy(os.Getenv("CLICOLOR_FORCE")) {
		return true
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if !interactive || !termSupportsColor(os.Getenv("TERM")) {
		return false
	}
	if v := os.Getenv("CLICOLOR"); v != "" {
		return isTruthy(v)
	}
	return true
}

func termSupportsColor(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "dumb" {
		return false
	}
	for _, t := range colorTerminals {
		if name == t || strings.HasPrefix(name, t+"-") {
			return true
		}
	}
	return false
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func isFalsy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "no":
		return true
	default:
		return false
	}
}
