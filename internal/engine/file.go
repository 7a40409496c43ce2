package engine

import (
	"context"
	"errors"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/chunkreader"
	"github.com/isseis/go-safe-digest/internal/extproc"
	"github.com/isseis/go-safe-digest/internal/progress"
)

// Callbacks connect a file calculation to its caller. All of them are called
// on the goroutine running CalculateFile; nil fields are ignored.
type Callbacks struct {
	// OnProgress receives throttled, non-decreasing percentages per algorithm
	OnProgress func(progress.Report)

	// IsCancelled is polled before every block and at every wait point
	IsCancelled func() bool

	// OnError receives one *calcerrors.CalculationError per failed algorithm
	OnError func(error)

	// OnSuccess receives a one-entry Result per completed algorithm, keyed
	// by the algorithm's registry name
	OnSuccess func(Result)
}

func (c Callbacks) cancelled() bool {
	return c.IsCancelled != nil && c.IsCancelled()
}

func (c Callbacks) progress(algorithm string, p int) {
	if c.OnProgress != nil {
		c.OnProgress(progress.Report{Percent: p, Algorithm: algorithm})
	}
}

// CalculateFile computes each named digest of the file at path, in order.
// Every algorithm ends in exactly one OnSuccess or OnError call, unless
// cancellation is observed: then CalculateFile returns without signalling
// anything for the current and the remaining algorithms.
func (e *Engine) CalculateFile(ctx context.Context, names []string, path string, cb Callbacks) {
	for _, name := range names {
		if cb.cancelled() || ctx.Err() != nil {
			return
		}

		algorithm, value, err := e.file(ctx, name, path, cb)
		if calcerrors.IsCancelled(err) || cb.cancelled() || ctx.Err() != nil {
			e.logger.Debug("Calculation cancelled", "algorithm", name, "path", path)
			return
		}
		if err != nil {
			err = calcerrors.WithPath(calcerrors.WithAlgorithm(err, algorithm), path)
			e.logger.Warn("Calculation failed", "algorithm", name, "path", path, "error", err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
			continue
		}

		e.logger.Debug("Calculation finished", "algorithm", algorithm, "path", path)
		if cb.OnSuccess != nil {
			cb.OnSuccess(Result{{Algorithm: algorithm, Value: value}})
		}
	}
}

// CalculateFileSync runs CalculateFile and collects its signals. Failures are
// joined into the returned error; cancellation yields calcerrors.ErrCancelled.
func (e *Engine) CalculateFileSync(ctx context.Context, names []string, path string) (Result, error) {
	var result Result
	var errs []error
	signalled := 0
	e.CalculateFile(ctx, names, path, Callbacks{
		OnError: func(err error) {
			errs = append(errs, err)
			signalled++
		},
		OnSuccess: func(r Result) {
			result = append(result, r...)
			signalled++
		},
	})
	if signalled < len(names) {
		return result, calcerrors.ErrCancelled
	}
	return result, errors.Join(errs...)
}

func (e *Engine) open(path string) (*chunkreader.Reader, error) {
	var opts []chunkreader.FileOption
	if e.opts.Decompress {
		opts = append(opts, chunkreader.WithDecompression())
	}
	return chunkreader.File(path, opts...).Open(e.opts.ChunkSize)
}

// file returns the registry name of the algorithm along with the digest.
func (e *Engine) file(ctx context.Context, name, path string, cb Callbacks) (string, string, error) {
	s, err := e.plan(name)
	if err != nil {
		return name, "", err
	}

	r, err := e.open(path)
	if err != nil {
		return s.name, "", err
	}
	defer func() { _ = r.Close() }()

	throttle := progress.NewThrottle(e.opts.ProgressStep)
	cancelled := func() bool {
		return cb.cancelled() || ctx.Err() != nil
	}

	if !s.external() {
		e.logger.Debug("Calculating file digest", "algorithm", s.name, "builtin", s.builtin, "path", path, "size", r.Total)
		value, err := accumulate(s.builtin, r, cancelled, func() {
			if p, ok := throttle.Observe(r.Done(), r.Total); ok {
				cb.progress(s.name, p)
			}
		})
		return s.name, value, err
	}

	e.logger.Debug("Streaming file to executable", "algorithm", s.name, "executable", s.executable, "path", path, "size", r.Total)
	value, err := e.runner.Stream(ctx, s.executable, s.argv(r.Total), r, extproc.Hooks{
		Cancelled: cb.cancelled,
		Progress: func(p int) {
			if p, ok := throttle.ObservePercent(p); ok {
				cb.progress(s.name, p)
			}
		},
	})
	return s.name, value, err
}
