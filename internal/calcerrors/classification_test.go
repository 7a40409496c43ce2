package calcerrors_test

import (
	goerrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllFields(t *testing.T) {
	cause := goerrors.New("boom")

	before := time.Now()
	err := calcerrors.New(calcerrors.KindIOFailure, "SHA-256", "/tmp/x", "read failed", cause)
	after := time.Now()

	assert.Equal(t, calcerrors.KindIOFailure, err.Kind)
	assert.Equal(t, "SHA-256", err.Algorithm)
	assert.Equal(t, "/tmp/x", err.Path)
	assert.Equal(t, "read failed", err.Message)
	assert.Equal(t, calcerrors.ExitCodeUnknown, err.ExitCode)
	assert.Equal(t, cause, err.Cause)
	assert.True(t, !err.Timestamp.Before(before) && !err.Timestamp.After(after))
}

func TestCalculationError_IsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unknown algorithm", calcerrors.UnknownAlgorithm("FOO"), calcerrors.ErrUnknownAlgorithm},
		{"executable missing", calcerrors.ExecutableMissing("X", "/bin/none", nil), calcerrors.ErrExecutableMissing},
		{"timeout", calcerrors.Timeout("X"), calcerrors.ErrTimeout},
		{"process failure", calcerrors.ProcessFailure("X", 3, nil), calcerrors.ErrProcessFailure},
		{"io failure", calcerrors.IOFailure("/nope", nil), calcerrors.ErrIOFailure},
		{"worker failure", calcerrors.WorkerFailure("panic", nil), calcerrors.ErrWorkerFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotErrorIs(t, tt.err, calcerrors.ErrCancelled)
		})
	}
}

func TestCalculationError_UnwrapsCause(t *testing.T) {
	cause := goerrors.New("permission denied")
	err := calcerrors.IOFailure("/secret", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/secret")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestCalculationError_ProcessFailureMessage(t *testing.T) {
	err := calcerrors.ProcessFailure("SHA-1", 2, nil)
	assert.Equal(t, "SHA-1: hash calculation failed: exit status 2", err.Error())
}

func TestWithAlgorithmAndPath(t *testing.T) {
	base := calcerrors.IOFailure("", goerrors.New("eof"))

	annotated := calcerrors.WithPath(calcerrors.WithAlgorithm(base, "CRC-32"), "/a/b")

	var ce *calcerrors.CalculationError
	require.ErrorAs(t, annotated, &ce)
	assert.Equal(t, "CRC-32", ce.Algorithm)
	assert.Equal(t, "/a/b", ce.Path)
	assert.Empty(t, base.Algorithm, "original must not be mutated")

	plain := goerrors.New("plain")
	assert.Equal(t, plain, calcerrors.WithAlgorithm(plain, "X"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, calcerrors.KindTimeout, calcerrors.KindOf(fmt.Errorf("w: %w", calcerrors.Timeout("X"))))
	assert.Equal(t, calcerrors.Kind(0), calcerrors.KindOf(goerrors.New("x")))
	assert.Equal(t, "timeout", calcerrors.KindTimeout.String())
	assert.Equal(t, "unknown", calcerrors.Kind(99).String())
}

func TestHint(t *testing.T) {
	assert.NotEmpty(t, calcerrors.ExecutableMissing("X", "x", nil).Hint())
	assert.Empty(t, calcerrors.IOFailure("x", nil).Hint())
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, calcerrors.IsCancelled(fmt.Errorf("stream: %w", calcerrors.ErrCancelled)))
	assert.False(t, calcerrors.IsCancelled(calcerrors.Timeout("X")))
}
