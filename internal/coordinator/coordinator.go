// Package coordinator runs file calculations on a single background worker
// and hands their signals back to the interactive side through a channel.
//
// The worker never calls presentation code. Whoever owns the presentation
// drains Events and applies each event on its own goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/isseis/go-safe-digest/internal/engine"
	"github.com/isseis/go-safe-digest/internal/progress"
	"github.com/oklog/ulid/v2"
)

// DefaultShutdownWait bounds how long Shutdown waits for the worker
const DefaultShutdownWait = 2 * time.Second

// DefaultEventBuffer is the capacity of the events channel
const DefaultEventBuffer = 256

// Error definitions
var (
	ErrBusy            = errors.New("a calculation is already in progress")
	ErrClosed          = errors.New("coordinator is shut down")
	ErrEmptyBatch      = errors.New("batch needs at least one file and one algorithm")
	ErrShutdownTimeout = errors.New("worker did not stop within the shutdown wait")
)

// Calculator is the engine surface the coordinator drives
type Calculator interface {
	CalculateFile(ctx context.Context, names []string, path string, cb engine.Callbacks)
	CalculateText(ctx context.Context, names []string, text string) (engine.Result, error)
	Terminate() bool
}

// Batch is one file-mode request. Files and algorithms are processed
// sequentially in the given order.
type Batch struct {
	Files      []string
	Algorithms []string
}

// Options configures a Coordinator
type Options struct {
	ShutdownWait time.Duration
	EventBuffer  int
	Logger       *slog.Logger
}

// Coordinator owns the background worker
type Coordinator struct {
	calc         Calculator
	events       chan Event
	quit         chan struct{}
	shutdownWait time.Duration
	logger       *slog.Logger

	// cancelled is the shared flag polled by the running calculation
	cancelled atomic.Bool

	mu       sync.Mutex
	running  bool
	closed   bool
	cancelFn context.CancelFunc
	done     chan struct{}
}

// New creates a Coordinator driving calc.
func New(calc Calculator, opts Options) *Coordinator {
	if opts.ShutdownWait <= 0 {
		opts.ShutdownWait = DefaultShutdownWait
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		calc:         calc,
		events:       make(chan Event, opts.EventBuffer),
		quit:         make(chan struct{}),
		shutdownWait: opts.ShutdownWait,
		logger:       opts.Logger,
	}
}

// Events returns the channel carrying worker signals. It is closed by a
// Shutdown that observed the worker stop.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Busy reports whether a batch is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Submit starts b on the background worker and returns its id. While a batch
// is in flight Submit does nothing and returns ErrBusy.
func (c *Coordinator) Submit(b Batch) (ulid.ULID, error) {
	if len(b.Files) == 0 || len(b.Algorithms) == 0 {
		return ulid.ULID{}, ErrEmptyBatch
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ulid.ULID{}, ErrClosed
	}
	if c.running {
		return ulid.ULID{}, ErrBusy
	}

	id := ulid.Make()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelled.Store(false)
	c.running = true
	c.cancelFn = cancel
	c.done = make(chan struct{})

	batch := Batch{
		Files:      append([]string(nil), b.Files...),
		Algorithms: append([]string(nil), b.Algorithms...),
	}
	c.logger.Info("Batch submitted", "batch_id", id.String(), "files", len(batch.Files), "algorithms", batch.Algorithms)
	go c.work(ctx, id, batch, c.done)
	return id, nil
}

// Cancel asks the running batch to stop. Items not yet finished produce no
// result or error events.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)

	c.mu.Lock()
	cancel := c.cancelFn
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the in-flight batch, if any, has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the running batch, terminates its subprocess and waits
// for the worker for at most the configured shutdown wait. Further Submit
// calls fail with ErrClosed.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	done := c.done
	c.mu.Unlock()

	// The wait covers the termination grace period too.
	timer := time.NewTimer(c.shutdownWait)
	defer timer.Stop()

	c.Cancel()
	if c.calc.Terminate() {
		c.logger.Info("Terminated running subprocess")
	}
	close(c.quit)

	if done != nil {
		select {
		case <-done:
		case <-timer.C:
			c.logger.Error("Worker did not stop in time", "wait", c.shutdownWait)
			return ErrShutdownTimeout
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
		}
	}
	close(c.events)
	return nil
}

// CalculateText computes text digests synchronously on the caller's goroutine.
func (c *Coordinator) CalculateText(ctx context.Context, names []string, text string) (engine.Result, error) {
	return c.calc.CalculateText(ctx, names, text)
}

// emit delivers ev unless the coordinator is shutting down.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// emitProgress drops the report when the channel is full.
func (c *Coordinator) emitProgress(ev ProgressEvent) {
	if ev.Report.Percent >= 100 {
		c.emit(ev)
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Coordinator) isCancelled() bool {
	return c.cancelled.Load()
}

func (c *Coordinator) work(ctx context.Context, id ulid.ULID, b Batch, done chan struct{}) {
	summary := DoneEvent{Batch: id}
	logger := c.logger.With("batch_id", id.String())

	defer func() {
		if r := recover(); r != nil {
			summary.Err = calcerrors.WorkerFailure(fmt.Sprintf("worker panic: %v", r), nil)
			logger.Error("Worker failed", "error", summary.Err)
		}
		summary.Cancelled = summary.Err == nil && (c.isCancelled() || ctx.Err() != nil)
		logger.Info("Batch finished",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"cancelled", summary.Cancelled)
		c.emit(summary)

		c.mu.Lock()
		c.running = false
		if c.cancelFn != nil {
			c.cancelFn()
			c.cancelFn = nil
		}
		c.mu.Unlock()

		// Must stay last: waiters release the logger once done is closed.
		close(done)
	}()

	total := len(b.Files)
	for i, file := range b.Files {
		if c.isCancelled() || ctx.Err() != nil {
			return
		}

		label := ""
		if total > 1 {
			label = fmt.Sprintf("%d/%d", i+1, total)
		}
		index := i
		sink := progress.Labeled(progress.SinkFunc(func(r progress.Report) {
			c.emitProgress(ProgressEvent{Batch: id, File: file, Algorithm: r.Algorithm, Report: r})
		}), label)

		c.calc.CalculateFile(ctx, b.Algorithms, file, engine.Callbacks{
			OnProgress:  sink.Report,
			IsCancelled: c.isCancelled,
			OnError: func(err error) {
				summary.Failed++
				c.emit(ErrorEvent{Batch: id, File: file, Index: index, Err: err})
			},
			OnSuccess: func(res engine.Result) {
				summary.Succeeded++
				c.emit(ResultEvent{Batch: id, File: file, Index: index, Result: res})
			},
		})
	}
}
