package extproc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
)

// Stream feeds the blocks of src to the executable at path, relaying progress
// parsed from its diagnostic channel, and returns the trimmed digest it
// prints on exit.
//
// Streaming runs have no overall timeout. They end when the executable exits,
// when hooks.Cancelled reports true, or when ctx is done; in the last two
// cases the process group is terminated and calcerrors.ErrCancelled is
// returned. A cancellation observed before the first block is written does
// not spawn anything.
func (r *Runner) Stream(ctx context.Context, path string, args []string, src ChunkSource, hooks Hooks) (string, error) {
	if hooks.cancelled() || ctx.Err() != nil {
		return "", calcerrors.ErrCancelled
	}
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	// #nosec G204 -- path comes from the algorithm registry and was resolved by Resolve
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", calcerrors.ProcessFailure("", calcerrors.ExitCodeUnknown, err)
	}
	var stdout bytes.Buffer
	diag := &diagnosticWriter{}
	cmd.Stdout = &stdout
	cmd.Stderr = diag

	p, cleanup, err := r.spawn(cmd)
	if err != nil {
		return "", err
	}
	defer cleanup()

	// A blocked write is released by killing the reader.
	stop := context.AfterFunc(ctx, func() {
		p.terminate(r.cfg.TerminateGrace)
	})
	defer stop()

	relay := func() {
		for _, v := range diag.drain() {
			hooks.progress(v)
		}
	}
	aborted := func() bool {
		return hooks.cancelled() || ctx.Err() != nil
	}

	inputClosed := false
	for {
		if aborted() {
			return "", calcerrors.ErrCancelled
		}
		block, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if calcerrors.KindOf(err) == 0 {
				err = calcerrors.IOFailure("", err)
			}
			return "", err
		}
		if _, err := stdin.Write(block); err != nil {
			r.logger.Debug("Subprocess stopped reading input", "pid", p.pid, "error", err)
			inputClosed = true
			break
		}
		relay()
	}
	_ = stdin.Close()

	if err := r.await(p, relay, aborted); err != nil {
		return "", err
	}
	diag.flush()
	relay()
	if aborted() {
		return "", calcerrors.ErrCancelled
	}

	digest, err := r.finish(p, &stdout, diag)
	if err != nil {
		return "", err
	}
	if inputClosed {
		return "", calcerrors.ProcessFailure("", p.exitCode(), ErrInputClosed)
	}
	return digest, nil
}

// await polls until p exits, relaying progress on every tick.
func (r *Runner) await(p *process, relay func(), aborted func() bool) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return nil
		case <-ticker.C:
			relay()
			if aborted() {
				return calcerrors.ErrCancelled
			}
		}
	}
}
