package sync

import "time"

// Progress is the live view of a running pass.
type Progress struct {
	IsRunning       bool
	Processed       int
	Total           int
	ProgressPercent float64
}

// RunResult is the outcome of one sync pass. It is reported, never
// persisted.
type RunResult struct {
	SyncedCount int
	FailedCount int
	DeadCount   int
	StartedAt   time.Time
	Duration    time.Duration
}

// DurationMs returns the pass duration in whole milliseconds.
func (r *RunResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
