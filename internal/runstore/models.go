package runstore

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID          string
	Mode        string
	LedgerPath  string
	InputDir    string
	Status      Status
	StartedAt   time.Time
	FinishedAt  *time.Time
	Discovered  int
	AlreadyDone int
	Processed   int
	Error       string
}

// Duration returns how long the run took, or has taken so far.
func (r Run) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Counts are the tallies recorded when a run finishes.
type Counts struct {
	Discovered  int
	AlreadyDone int
	Processed   int
}
