// Package progress provides percentage reports and the throttle that bounds
// how often they are emitted.
package progress

import "fmt"

// DefaultStep is the minimum percentage advance between two reports
const DefaultStep = 5

// Report is a single progress update for one calculation
type Report struct {
	// Percent is in the range 0-100 and never decreases within one calculation
	Percent int

	// Label optionally tags the report, e.g. "2/5" within a multi-file batch
	Label string

	// Algorithm names the calculation the report belongs to, if known
	Algorithm string
}

// String renders the report for humans.
func (r Report) String() string {
	s := fmt.Sprintf("%d%%", r.Percent)
	if r.Algorithm != "" {
		s = r.Algorithm + " " + s
	}
	if r.Label != "" {
		s = "[" + r.Label + "] " + s
	}
	return s
}

// Sink receives progress reports
type Sink interface {
	Report(r Report)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(r Report)

// Report calls f(r).
func (f SinkFunc) Report(r Report) {
	f(r)
}

// Labeled returns a Sink that stamps label onto every report before
// forwarding it to next.
func Labeled(next Sink, label string) Sink {
	if label == "" {
		return next
	}
	return SinkFunc(func(r Report) {
		r.Label = label
		next.Report(r)
	})
}
