// Package calcerrors provides the error taxonomy shared by the digest engine,
// its strategies and the coordinator.
package calcerrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind represents different categories of calculation errors
type Kind int

const (
	// KindUnknownAlgorithm indicates the algorithm name is not registered
	KindUnknownAlgorithm Kind = iota + 1
	// KindExecutableMissing indicates a configured external backend is not on disk
	KindExecutableMissing
	// KindTimeout indicates an external process exceeded its allotted time
	KindTimeout
	// KindProcessFailure indicates an external process exited with a non-zero status
	KindProcessFailure
	// KindIOFailure indicates the input source could not be read
	KindIOFailure
	// KindWorkerFailure indicates the background worker itself failed
	KindWorkerFailure
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case KindUnknownAlgorithm:
		return "unknown_algorithm"
	case KindExecutableMissing:
		return "executable_missing"
	case KindTimeout:
		return "timeout"
	case KindProcessFailure:
		return "process_failure"
	case KindIOFailure:
		return "io_failure"
	case KindWorkerFailure:
		return "worker_failure"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. A CalculationError matches the sentinel of
// its kind with errors.Is.
var (
	ErrUnknownAlgorithm  = errors.New("unknown algorithm")
	ErrExecutableMissing = errors.New("executable not found")
	ErrTimeout           = errors.New("hash calculation timed out")
	ErrProcessFailure    = errors.New("hash calculation failed")
	ErrIOFailure         = errors.New("input could not be read")
	ErrWorkerFailure     = errors.New("background worker failed")

	// ErrCancelled is returned internally by strategies when the cancellation
	// predicate was observed. It never reaches an error callback.
	ErrCancelled = errors.New("calculation cancelled")
)

var sentinels = map[Kind]error{
	KindUnknownAlgorithm:  ErrUnknownAlgorithm,
	KindExecutableMissing: ErrExecutableMissing,
	KindTimeout:           ErrTimeout,
	KindProcessFailure:    ErrProcessFailure,
	KindIOFailure:         ErrIOFailure,
	KindWorkerFailure:     ErrWorkerFailure,
}

// ExitCodeUnknown is used when the process exit status could not be determined
const ExitCodeUnknown = -1

// CalculationError represents a classified failure of one algorithm/input item
type CalculationError struct {
	Kind      Kind
	Algorithm string
	Path      string
	ExitCode  int
	Message   string
	Cause     error
	Timestamp time.Time
}

// Error implements the error interface.
func (e *CalculationError) Error() string {
	msg := e.Message
	if msg == "" {
		if sentinel, ok := sentinels[e.Kind]; ok {
			msg = sentinel.Error()
		} else {
			msg = "calculation error"
		}
	}
	if e.Algorithm != "" {
		msg = fmt.Sprintf("%s: %s", e.Algorithm, msg)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Kind == KindProcessFailure && e.ExitCode != ExitCodeUnknown {
		msg = fmt.Sprintf("%s: exit status %d", msg, e.ExitCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CalculationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel error for this error's kind.
func (e *CalculationError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Hint returns remediation text for the error, or an empty string.
func (e *CalculationError) Hint() string {
	switch e.Kind {
	case KindExecutableMissing:
		return "build or install the executable next to the binary, or set [external] executable_dir"
	case KindUnknownAlgorithm:
		return "run with -list to see the registered algorithms"
	case KindTimeout:
		return "raise [external] text_timeout or use file mode for large inputs"
	default:
		return ""
	}
}
