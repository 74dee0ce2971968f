// Package state keeps run history, the latest lineage of every job and the
// scripts that failed, in a SQLite database shared across invocations.
// Stored records can be walked as a column graph with Trace.
package state

import (
	"errors"
	"time"
)

// ErrNotOpen is returned by every operation on a closed store.
var ErrNotOpen = errors.New("database not opened")

// RunStatus represents the status of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID          string
	Source      string // directory, file, list or s3 prefix that was processed
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Scripts     int
	Records     int
	Failures    int
	Error       string
}

// RunTotals are the counters recorded when a run completes.
type RunTotals struct {
	Scripts  int
	Records  int
	Failures int
}

// Failure is a script that could not be processed.
type Failure struct {
	Path     string
	RunID    string
	Error    string
	Attempts int
	FailedAt time.Time
}

// TraceStep is one edge visited by Trace. Source feeds Target.
type TraceStep struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Depth  int      `json:"depth"`
	Jobs   []string `json:"jobs"` // system/job of every job that produced the edge
}
