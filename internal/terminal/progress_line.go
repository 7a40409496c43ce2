package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ANSI sequences
const (
	ansiReset     = "\x1b[0m"
	ansiClearLine = "\x1b[K"
)

// Color is an ANSI foreground color
type Color string

// Colors used for diagnostics
const (
	Red    Color = "\x1b[31m"
	Yellow Color = "\x1b[33m"
	Green  Color = "\x1b[32m"
	Gray   Color = "\x1b[90m"
)

// Paint wraps s in c when colors are enabled.
func (c Capabilities) Paint(color Color, s string) string {
	if !c.Color || s == "" {
		return s
	}
	return string(color) + s + ansiReset
}

// ProgressLine redraws a single status line in place. On non-interactive
// streams every call is a no-op. It is safe for concurrent use.
type ProgressLine struct {
	mu    sync.Mutex
	w     io.Writer
	caps  Capabilities
	width int
}

// NewProgressLine creates a ProgressLine writing to w.
func NewProgressLine(w io.Writer, caps Capabilities) *ProgressLine {
	return &ProgressLine{w: w, caps: caps}
}

// Enabled reports whether updates are drawn.
func (p *ProgressLine) Enabled() bool {
	return p.caps.Interactive
}

// Update replaces the current line with text.
func (p *ProgressLine) Update(text string) {
	if !p.caps.Interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draw(text)
}

// Clear erases the line so regular output can follow.
func (p *ProgressLine) Clear() {
	if !p.caps.Interactive {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width == 0 {
		return
	}
	p.draw("")
	_, _ = fmt.Fprint(p.w, "\r")
	p.width = 0
}

// draw must be called with mu held.
func (p *ProgressLine) draw(text string) {
	pad := ""
	if n := p.width - len(text); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	if p.caps.Color {
		pad = ansiClearLine
	}
	_, _ = fmt.Fprintf(p.w, "\r%s%s", text, pad)
	p.width = len(text)
}
