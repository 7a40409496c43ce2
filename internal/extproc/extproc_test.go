package extproc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// helperModeEnv switches the test binary into a fake digest executable.
const helperModeEnv = "EXTPROC_HELPER_MODE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperModeEnv); mode != "" {
		os.Exit(runHelper(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runHelper(mode string, args []string) int {
	switch mode {
	case "digest":
		var size int64
		if len(args) > 0 {
			size, _ = strconv.ParseInt(args[0], 10, 64)
		}
		h := sha256.New()
		buf := make([]byte, 4096)
		var read int64
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				h.Write(buf[:n])
				read += int64(n)
				if size > 0 {
					fmt.Fprintf(os.Stderr, "PROGRESS:%d\n", min(read*100/size, 100))
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return 1
			}
		}
		fmt.Fprintln(os.Stderr, "PROGRESS:100")
		fmt.Println(hex.EncodeToString(h.Sum(nil)))
		return 0
	case "fail":
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Fprintln(os.Stderr, "boom")
		return 3
	case "sleep":
		time.Sleep(30 * time.Second)
		return 0
	case "ignore-term":
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stderr, "PROGRESS:1")
		time.Sleep(30 * time.Second)
		return 0
	case "close-early":
		fmt.Println("abc")
		return 0
	case "silent":
		_, _ = io.Copy(io.Discard, os.Stdin)
		return 0
	}
	return 2
}

func helperPath(t *testing.T, mode string) string {
	t.Helper()
	t.Setenv(helperModeEnv, mode)
	path, err := os.Executable()
	require.NoError(t, err)
	return path
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// blocks is a ChunkSource over fixed blocks.
type blocks struct {
	data [][]byte
	err  error
}

func (b *blocks) Next() ([]byte, error) {
	if len(b.data) == 0 {
		if b.err != nil {
			return nil, b.err
		}
		return nil, io.EOF
	}
	next := b.data[0]
	b.data = b.data[1:]
	return next, nil
}

func splitInto(data []byte, size int) *blocks {
	src := &blocks{}
	for off := 0; off < len(data); off += size {
		src.data = append(src.data, data[off:min(off+size, len(data))])
	}
	return src
}

func fastConfig() Config {
	return Config{
		TextTimeout:    5 * time.Second,
		TerminateGrace: 200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}
}

func processGone(pid int) bool {
	err := unix.Kill(pid, 0)
	return errors.Is(err, unix.ESRCH)
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"PROGRESS:0", 0, true},
		{"PROGRESS:42", 42, true},
		{"PROGRESS:100\r", 100, true},
		{"  PROGRESS:7  ", 7, true},
		{"PROGRESS:12 extra", 12, true},
		{"progress:12", 0, false},
		{"PROGRESS:", 0, false},
		{"PROGRESS:-1", 0, false},
		{"warning: slow disk", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseProgress(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiagnosticWriter(t *testing.T) {
	t.Run("lines split across writes", func(t *testing.T) {
		w := &diagnosticWriter{}
		_, _ = w.Write([]byte("PROGRESS:1"))
		_, _ = w.Write([]byte("0\nnoise\nPROG"))
		_, _ = w.Write([]byte("RESS:20\n"))

		assert.Equal(t, []int{10, 20}, w.drain())
		assert.Empty(t, w.drain())
		assert.Equal(t, "noise", w.diagnostics())
	})

	t.Run("flush completes the last line", func(t *testing.T) {
		w := &diagnosticWriter{}
		_, _ = w.Write([]byte("PROGRESS:100"))
		assert.Empty(t, w.drain())
		w.flush()
		assert.Equal(t, []int{100}, w.drain())
	})

	t.Run("tail is bounded", func(t *testing.T) {
		w := &diagnosticWriter{}
		line := strings.Repeat("x", 1000) + "\n"
		for range 10 {
			_, _ = w.Write([]byte(line))
		}
		assert.LessOrEqual(t, len(w.tail), maxDiagnosticTail)
	})
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "crc_hasher")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	t.Run("relative reference", func(t *testing.T) {
		got, err := Resolve(dir, "crc_hasher")
		require.NoError(t, err)
		assert.Equal(t, exe, got)
	})

	t.Run("absolute reference ignores dir", func(t *testing.T) {
		got, err := Resolve("/elsewhere", exe)
		require.NoError(t, err)
		assert.Equal(t, exe, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Resolve(dir, "nope")
		assert.ErrorIs(t, err, calcerrors.ErrExecutableMissing)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Resolve(dir, "subdir")
		assert.ErrorIs(t, err, calcerrors.ErrExecutableMissing)
		assert.ErrorIs(t, err, ErrNotRegularFile)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Resolve(dir, "")
		assert.ErrorIs(t, err, calcerrors.ErrExecutableMissing)
	})
}

func TestRunWhole(t *testing.T) {
	t.Run("digest", func(t *testing.T) {
		r := NewRunner(fastConfig())
		got, err := r.RunWhole(context.Background(), helperPath(t, "digest"), nil, []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, sha256Hex([]byte("hello")), got)
		assert.False(t, r.Slot().Active())
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := NewRunner(fastConfig())
		_, err := r.RunWhole(context.Background(), helperPath(t, "fail"), nil, []byte("hello"))
		require.ErrorIs(t, err, calcerrors.ErrProcessFailure)

		var ce *calcerrors.CalculationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 3, ce.ExitCode)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("empty output", func(t *testing.T) {
		r := NewRunner(fastConfig())
		_, err := r.RunWhole(context.Background(), helperPath(t, "silent"), nil, []byte("hello"))
		assert.ErrorIs(t, err, calcerrors.ErrProcessFailure)
		assert.ErrorIs(t, err, ErrEmptyDigest)
	})

	t.Run("timeout terminates the process", func(t *testing.T) {
		cfg := fastConfig()
		cfg.TextTimeout = 200 * time.Millisecond
		r := NewRunner(cfg)

		start := time.Now()
		_, err := r.RunWhole(context.Background(), helperPath(t, "sleep"), nil, []byte("hello"))
		require.ErrorIs(t, err, calcerrors.ErrTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.False(t, r.Slot().Active())
		assert.Zero(t, r.Slot().Pid())
	})

	t.Run("missing executable", func(t *testing.T) {
		r := NewRunner(fastConfig())
		_, err := r.RunWhole(context.Background(), filepath.Join(t.TempDir(), "absent"), nil, nil)
		assert.ErrorIs(t, err, calcerrors.ErrExecutableMissing)
	})
}

func TestStream(t *testing.T) {
	t.Run("round trip with progress", func(t *testing.T) {
		data := bytes.Repeat([]byte("0123456789"), 10000)
		r := NewRunner(fastConfig())

		var seen []int
		got, err := r.Stream(context.Background(), helperPath(t, "digest"),
			[]string{strconv.Itoa(len(data))}, splitInto(data, 7000),
			Hooks{Progress: func(p int) { seen = append(seen, p) }})
		require.NoError(t, err)
		assert.Equal(t, sha256Hex(data), got)

		require.NotEmpty(t, seen)
		assert.Equal(t, 100, seen[len(seen)-1])
		for i := 1; i < len(seen); i++ {
			assert.GreaterOrEqual(t, seen[i], seen[i-1])
		}
	})

	t.Run("cancelled before the first block spawns nothing", func(t *testing.T) {
		r := NewRunner(fastConfig())
		var progressCalls int
		_, err := r.Stream(context.Background(), helperPath(t, "digest"), nil,
			splitInto([]byte("abc"), 1),
			Hooks{
				Cancelled: func() bool { return true },
				Progress:  func(int) { progressCalls++ },
			})
		assert.ErrorIs(t, err, calcerrors.ErrCancelled)
		assert.Zero(t, progressCalls)
		assert.Zero(t, r.Slot().Pid())
	})

	t.Run("cancel flag and slot terminate", func(t *testing.T) {
		r := NewRunner(fastConfig())
		var cancelled atomic.Bool
		done := make(chan error, 1)
		path := helperPath(t, "sleep")

		go func() {
			_, err := r.Stream(context.Background(), path, nil, splitInto([]byte("abc"), 1),
				Hooks{Cancelled: cancelled.Load})
			done <- err
		}()

		require.Eventually(t, r.Slot().Active, 5*time.Second, 10*time.Millisecond)
		pid := r.Slot().Pid()
		cancelled.Store(true)
		assert.True(t, r.Slot().Terminate())

		select {
		case err := <-done:
			assert.ErrorIs(t, err, calcerrors.ErrCancelled)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not return after terminate")
		}
		assert.True(t, processGone(pid))
		assert.False(t, r.Slot().Terminate())
	})

	t.Run("context cancellation", func(t *testing.T) {
		r := NewRunner(fastConfig())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		path := helperPath(t, "sleep")

		go func() {
			_, err := r.Stream(ctx, path, nil, splitInto([]byte("abc"), 1), Hooks{})
			done <- err
		}()

		require.Eventually(t, r.Slot().Active, 5*time.Second, 10*time.Millisecond)
		pid := r.Slot().Pid()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, calcerrors.ErrCancelled)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not return after cancel")
		}
		assert.True(t, processGone(pid))
	})

	t.Run("escalates to SIGKILL after grace", func(t *testing.T) {
		r := NewRunner(fastConfig())
		var cancelled, ready atomic.Bool
		done := make(chan error, 1)
		path := helperPath(t, "ignore-term")

		go func() {
			_, err := r.Stream(context.Background(), path, nil, splitInto([]byte("abc"), 1),
				Hooks{
					Cancelled: cancelled.Load,
					Progress:  func(int) { ready.Store(true) },
				})
			done <- err
		}()

		require.Eventually(t, ready.Load, 5*time.Second, 10*time.Millisecond)
		cancelled.Store(true)
		start := time.Now()
		assert.True(t, r.Slot().Terminate())
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, calcerrors.ErrCancelled)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not return after SIGKILL")
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := NewRunner(fastConfig())
		_, err := r.Stream(context.Background(), helperPath(t, "fail"), nil,
			splitInto([]byte("some data"), 4), Hooks{})
		require.ErrorIs(t, err, calcerrors.ErrProcessFailure)
		assert.Contains(t, err.Error(), "exit status 3")
	})

	t.Run("executable closing its input early", func(t *testing.T) {
		r := NewRunner(fastConfig())
		data := bytes.Repeat([]byte{'x'}, 4<<20)
		_, err := r.Stream(context.Background(), helperPath(t, "close-early"), nil,
			splitInto(data, 64<<10), Hooks{})
		assert.ErrorIs(t, err, calcerrors.ErrProcessFailure)
		assert.ErrorIs(t, err, ErrInputClosed)
	})

	t.Run("source read error", func(t *testing.T) {
		r := NewRunner(fastConfig())
		src := &blocks{data: [][]byte{[]byte("abc")}, err: errors.New("disk gone")}
		_, err := r.Stream(context.Background(), helperPath(t, "digest"), nil, src, Hooks{})
		assert.ErrorIs(t, err, calcerrors.ErrIOFailure)
		assert.False(t, r.Slot().Active())
	})
}
