package coordinator

import (
	"github.com/isseis/go-safe-digest/internal/engine"
	"github.com/isseis/go-safe-digest/internal/progress"
	"github.com/oklog/ulid/v2"
)

// Event is a signal from the background worker. The concrete types are
// ProgressEvent, ResultEvent, ErrorEvent and DoneEvent.
type Event interface {
	BatchID() ulid.ULID
}

// ProgressEvent reports the progress of one algorithm on one file
type ProgressEvent struct {
	Batch     ulid.ULID
	File      string
	Algorithm string
	Report    progress.Report
}

// ResultEvent carries one completed digest
type ResultEvent struct {
	Batch  ulid.ULID
	File   string
	Index  int
	Result engine.Result
}

// ErrorEvent carries one failed algorithm
type ErrorEvent struct {
	Batch ulid.ULID
	File  string
	Index int
	Err   error
}

// DoneEvent is the last event of a batch
type DoneEvent struct {
	Batch     ulid.ULID
	Succeeded int
	Failed    int
	Cancelled bool

	// Err is set when the worker itself failed and the batch was aborted
	Err error
}

// BatchID implements Event.
func (e ProgressEvent) BatchID() ulid.ULID { return e.Batch }

// BatchID implements Event.
func (e ResultEvent) BatchID() ulid.ULID { return e.Batch }

// BatchID implements Event.
func (e ErrorEvent) BatchID() ulid.ULID { return e.Batch }

// BatchID implements Event.
func (e DoneEvent) BatchID() ulid.ULID { return e.Batch }
