package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/isseis/go-safe-digest/internal/terminal"
)

// ConsoleHandlerOptions configures a ConsoleHandler
type ConsoleHandlerOptions struct {
	// Level is the minimum level written
	Level slog.Leveler

	// Capabilities selects colored output
	Capabilities terminal.Capabilities

	// ProgressLine, when set, is cleared before each record so the record
	// does not share a line with the progress display
	ProgressLine *terminal.ProgressLine
}

// ConsoleHandler writes compact, human-oriented records:
//
//	WARN  Calculation failed algorithm=SHA-1 error="..."
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   ConsoleHandlerOptions
	prefix string
	attrs  []slog.Attr
}

// NewConsoleHandler creates a ConsoleHandler writing to w.
func NewConsoleHandler(w io.Writer, opts ConsoleHandlerOptions) *ConsoleHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, opts: opts}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(h.formatLevel(r.Level))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		appendAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&sb, h.prefix, a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.ProgressLine != nil {
		h.opts.ProgressLine.Clear()
	}
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *ConsoleHandler) formatLevel(level slog.Level) string {
	label := fmt.Sprintf("%-5s", level.String())
	caps := h.opts.Capabilities
	switch {
	case level >= slog.LevelError:
		return caps.Paint(terminal.Red, label)
	case level >= slog.LevelWarn:
		return caps.Paint(terminal.Yellow, label)
	case level >= slog.LevelInfo:
		return caps.Paint(terminal.Green, label)
	default:
		return caps.Paint(terminal.Gray, label)
	}
}

func appendAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(sb, group, ga)
		}
		return
	}

	sb.WriteByte(' ')
	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	s := a.Value.String()
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		s = strconv.Quote(s)
	}
	sb.WriteString(s)
}
