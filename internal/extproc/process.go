package extproc

import (
	"errors"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// process is one spawned executable. The goroutine started by start is the
// only caller of cmd.Wait; done is closed once it returns.
type process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}
	err  error
}

// prepare configures cmd so that the executable and anything it spawns
// share a fresh process group and can be signalled together.
func prepare(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bounds Wait when a grandchild keeps the output pipes open.
	cmd.WaitDelay = grace
}

func start(cmd *exec.Cmd) (*process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// signal delivers sig to the whole process group, falling back to the
// process itself if the group is already gone.
func (p *process) signal(sig unix.Signal) error {
	if err := unix.Kill(-p.pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return p.cmd.Process.Signal(sig)
		}
		return err
	}
	return nil
}

// terminate sends SIGTERM and escalates to SIGKILL if the process has not
// exited within grace. It returns once the signals are sent; callers that
// need the exit must still wait on done.
func (p *process) terminate(grace time.Duration) {
	if p.exited() {
		return
	}
	if err := p.signal(unix.SIGTERM); err != nil {
		_ = p.signal(unix.SIGKILL)
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		// ESRCH from a group that exited in the meantime is harmless.
		_ = p.signal(unix.SIGKILL)
	}
}

// exitCode returns the exit status of a finished process, or -1 if it was
// killed by a signal or never reported one.
func (p *process) exitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Slot tracks the single live subprocess owned by a Runner. Only the Runner
// stores and clears it; Terminate may be called from any goroutine and only
// signals the tracked process.
type Slot struct {
	cur   atomic.Pointer[process]
	grace time.Duration
}

func (s *Slot) set(p *process) {
	s.cur.Store(p)
}

func (s *Slot) clear(p *process) {
	s.cur.CompareAndSwap(p, nil)
}

// Active reports whether a subprocess is currently tracked and running.
func (s *Slot) Active() bool {
	p := s.cur.Load()
	return p != nil && !p.exited()
}

// Pid returns the tracked process id, or 0 when the slot is empty.
func (s *Slot) Pid() int {
	if p := s.cur.Load(); p != nil {
		return p.pid
	}
	return 0
}

// Terminate signals the tracked subprocess: SIGTERM first, SIGKILL after the
// grace window. It blocks for at most the grace window and reports whether
// a running process was found.
func (s *Slot) Terminate() bool {
	p := s.cur.Load()
	if p == nil || p.exited() {
		return false
	}
	p.terminate(s.grace)
	return true
}
