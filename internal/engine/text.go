package engine

import (
	"context"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/chunkreader"
)

// CalculateText computes every named digest of text, in order. It stops at
// the first failure and returns it as a *calcerrors.CalculationError; an
// unknown name fails before anything is computed.
func (e *Engine) CalculateText(ctx context.Context, names []string, text string) (Result, error) {
	plans := make([]strategy, 0, len(names))
	for _, name := range names {
		s, err := e.plan(name)
		if err != nil {
			return nil, err
		}
		plans = append(plans, s)
	}

	result := make(Result, 0, len(plans))
	for _, s := range plans {
		value, err := e.text(ctx, s, []byte(text))
		if err != nil {
			return nil, err
		}
		result = append(result, Digest{Algorithm: s.name, Value: value})
	}
	return result, nil
}

// CalculateTextEach computes every named digest of text, isolating failures:
// the returned errors cover only the names that failed, and the result holds
// all others.
func (e *Engine) CalculateTextEach(ctx context.Context, names []string, text string) (Result, []error) {
	var result Result
	var errs []error
	for _, name := range names {
		s, err := e.plan(name)
		if err == nil {
			var value string
			value, err = e.text(ctx, s, []byte(text))
			if err == nil {
				result = append(result, Digest{Algorithm: s.name, Value: value})
				continue
			}
		}
		if calcerrors.IsCancelled(err) {
			return result, errs
		}
		errs = append(errs, err)
	}
	return result, errs
}

func (e *Engine) text(ctx context.Context, s strategy, b []byte) (string, error) {
	if s.external() {
		e.logger.Debug("Calculating text digest", "algorithm", s.name, "executable", s.executable)
		value, err := e.runner.RunWhole(ctx, s.executable, s.argv(int64(len(b))), b)
		return value, calcerrors.WithAlgorithm(err, s.name)
	}

	r, err := chunkreader.Text(b).Open(e.opts.ChunkSize)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	value, err := accumulate(s.builtin, r, func() bool { return ctx.Err() != nil }, func() {})
	return value, calcerrors.WithAlgorithm(err, s.name)
}
