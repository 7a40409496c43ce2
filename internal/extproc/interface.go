package extproc

import "time"

// Default values for Config fields
const (
	DefaultTextTimeout    = 5 * time.Second
	DefaultTerminateGrace = 1 * time.Second
	DefaultPollInterval   = 50 * time.Millisecond
)

// Config controls subprocess timing
type Config struct {
	// TextTimeout bounds a whole-input run, including process start-up
	TextTimeout time.Duration

	// TerminateGrace is how long a process may take to exit after SIGTERM
	// before it is sent SIGKILL
	TerminateGrace time.Duration

	// PollInterval is the cadence at which a streaming run polls for
	// process exit, cancellation and pending progress
	PollInterval time.Duration
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.TextTimeout <= 0 {
		c.TextTimeout = DefaultTextTimeout
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = DefaultTerminateGrace
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Hooks connects a streaming run to its caller. Both functions are invoked
// only from the goroutine that called Stream.
type Hooks struct {
	// Cancelled is consulted before every chunk and at every poll point.
	Cancelled func() bool

	// Progress receives every percentage parsed from the diagnostic channel,
	// unthrottled and in arrival order.
	Progress func(percent int)
}

func (h Hooks) cancelled() bool {
	return h.Cancelled != nil && h.Cancelled()
}

func (h Hooks) progress(p int) {
	if h.Progress != nil {
		h.Progress(p)
	}
}

// ChunkSource yields successive input blocks and io.EOF at the end.
type ChunkSource interface {
	Next() ([]byte, error)
}
