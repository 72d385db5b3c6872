package loader

import (
	"time"
)

// State is the orchestrator's run state. A run moves Validating ->
// Loading -> Emitting -> Done; Failed is reachable from Validating only,
// since without a valid schema no load is attempted.
type State string

const (
	StateValidating State = "validating"
	StateLoading    State = "loading"
	StateEmitting   State = "emitting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome classifies a finished run for the exit-status contract.
type Outcome string

const (
	// OutcomeSuccess: every table loaded with zero failures of any kind.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: rows or sources were rejected, but every table
	// received at least the rows its sources could supply.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed: validation failed, or some table with a non-empty
	// source set produced zero written rows.
	OutcomeFailed Outcome = "failed"
)

// Rejection reasons recorded in TableReport.Reasons. Coercion failures
// use the coerce.FailureKind string directly.
const (
	ReasonFormat = "format_failure"
	ReasonWrite  = "write_failure"
)

// SourceFailure records one source that could not be loaded at all.
type SourceFailure struct {
	Source string
	Reason string
}

// TableReport aggregates outcomes for one table's load.
type TableReport struct {
	Table   string
	Sources int // number of configured sources

	Attempted int
	Written   int
	Rejected  int

	// Reasons counts rejected rows by rejection reason.
	Reasons map[string]int

	SourceFailures []SourceFailure

	Skipped bool // table has no sources
}

// HardFailure reports whether the table counts as a hard failure: it had
// configured sources, they supplied records or failed outright, and not
// a single row was written.
func (t *TableReport) HardFailure() bool {
	if t.Sources == 0 || t.Written > 0 {
		return false
	}
	return t.Attempted > 0 || len(t.SourceFailures) > 0
}

// Clean reports whether the table loaded without any rejection or source
// failure.
func (t *TableReport) Clean() bool {
	return t.Rejected == 0 && len(t.SourceFailures) == 0
}

// Report is the terminal artifact of a load run. It is built
// incrementally while the run progresses, one slot per table, and is
// immutable once the run ends.
type Report struct {
	RunID   string
	Project string
	State   State
	Error   string // fatal error, set only when State is Failed or the run was interrupted

	StartedAt   time.Time
	CompletedAt time.Time

	// Tables holds one report per table, in load order.
	Tables []TableReport
}

// Outcome classifies the whole run.
func (r *Report) Outcome() Outcome {
	if r.State == StateFailed {
		return OutcomeFailed
	}
	out := OutcomeSuccess
	for i := range r.Tables {
		if r.Tables[i].HardFailure() {
			return OutcomeFailed
		}
		if !r.Tables[i].Clean() {
			out = OutcomePartial
		}
	}
	if r.Error != "" && out == OutcomeSuccess {
		out = OutcomePartial
	}
	return out
}

// TotalWritten sums written rows across tables.
func (r *Report) TotalWritten() int {
	n := 0
	for i := range r.Tables {
		n += r.Tables[i].Written
	}
	return n
}

// TotalRejected sums rejected rows across tables.
func (r *Report) TotalRejected() int {
	n := 0
	for i := range r.Tables {
		n += r.Tables[i].Rejected
	}
	return n
}
