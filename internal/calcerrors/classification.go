package calcerrors

import (
	"errors"
	"time"
)

// New creates a CalculationError of the given kind
func New(kind Kind, algorithm, path, message string, cause error) *CalculationError {
	return &CalculationError{
		Kind:      kind,
		Algorithm: algorithm,
		Path:      path,
		ExitCode:  ExitCodeUnknown,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// UnknownAlgorithm creates an error for a name absent from the registry
func UnknownAlgorithm(name string) *CalculationError {
	return New(KindUnknownAlgorithm, name, "", "", nil)
}

// ExecutableMissing creates an error for a configured executable that does not exist
func ExecutableMissing(algorithm, executable string, cause error) *CalculationError {
	return New(KindExecutableMissing, algorithm, executable, "", cause)
}

// Timeout creates an error for an external process that ran out of time
func Timeout(algorithm string) *CalculationError {
	return New(KindTimeout, algorithm, "", "", nil)
}

// ProcessFailure creates an error for an external process that exited with a
// non-zero status.
func ProcessFailure(algorithm string, exitCode int, cause error) *CalculationError {
	e := New(KindProcessFailure, algorithm, "", "", cause)
	e.ExitCode = exitCode
	return e
}

// IOFailure creates an error for an unreadable input source
func IOFailure(path string, cause error) *CalculationError {
	return New(KindIOFailure, "", path, "", cause)
}

// WorkerFailure creates an error for a failed background worker
func WorkerFailure(message string, cause error) *CalculationError {
	return New(KindWorkerFailure, "", "", message, cause)
}

// WithAlgorithm returns err annotated with the algorithm name when err is a
// CalculationError that does not carry one yet. Other errors are returned unchanged.
func WithAlgorithm(err error, algorithm string) error {
	var ce *CalculationError
	if errors.As(err, &ce) && ce.Algorithm == "" {
		cp := *ce
		cp.Algorithm = algorithm
		return &cp
	}
	return err
}

// WithPath returns err annotated with the input path when err is a
// CalculationError that does not carry one yet.
func WithPath(err error, path string) error {
	var ce *CalculationError
	if errors.As(err, &ce) && ce.Path == "" {
		cp := *ce
		cp.Path = path
		return &cp
	}
	return err
}

// KindOf returns the Kind of err, or 0 when err is not a CalculationError.
func KindOf(err error) Kind {
	var ce *CalculationError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// IsCancelled reports whether err represents an observed cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
