package extproc

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// progressLine matches the diagnostic progress format "PROGRESS:<n>".
var progressLine = regexp.MustCompile(`^PROGRESS:(\d+)`)

// maxDiagnosticTail bounds how much non-progress diagnostic text is kept for
// error messages.
const maxDiagnosticTail = 4096

// ParseProgress extracts the percentage from one diagnostic line. Lines that
// do not match are not errors; they are simply not progress.
func ParseProgress(line string) (int, bool) {
	m := progressLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// diagnosticWriter receives the executable's diagnostic channel. It is
// written by the exec package's copying goroutine and drained by the
// goroutine running the calculation, so it never blocks the writer.
type diagnosticWriter struct {
	mu      sync.Mutex
	partial []byte
	pending []int
	tail    []byte
}

func (w *diagnosticWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(string(w.partial[:i]))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// line must be called with mu held.
func (w *diagnosticWriter) line(s string) {
	if n, ok := ParseProgress(s); ok {
		w.pending = append(w.pending, n)
		return
	}
	if strings.TrimSpace(s) == "" {
		return
	}
	w.tail = append(w.tail, s...)
	w.tail = append(w.tail, '\n')
	if over := len(w.tail) - maxDiagnosticTail; over > 0 {
		w.tail = w.tail[over:]
	}
}

// drain returns and forgets all progress values parsed so far.
func (w *diagnosticWriter) drain() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// flush treats an unterminated final line as complete.
func (w *diagnosticWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.line(string(w.partial))
		w.partial = nil
	}
}

// diagnostics returns the retained non-progress text.
func (w *diagnosticWriter) diagnostics() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.tail))
}
