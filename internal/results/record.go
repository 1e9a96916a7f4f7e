// Package results collects the progress records emitted by stream workers
// and folds them into summaries and export snapshots.
package results

import "time"

// Worker status values carried on a Record.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Record is an immutable progress snapshot emitted by a stream worker.
// Records are appended to the per-task history and never mutated.
type Record struct {
	TaskID       string    `json:"task_id"`
	WorkerID     string    `json:"worker_id"`
	Timestamp    time.Time `json:"timestamp"`
	FPS          float64   `json:"fps"`
	TotalIn      int       `json:"total_in"`
	TotalOut     int       `json:"total_out"`
	CurrentCount int       `json:"current_count"`
	Status       string    `json:"status"`
	FrameCount   int       `json:"frame_count"`
	Error        string    `json:"error,omitempty"`
}

// Terminal reports whether the record closes out its task.
func (r Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// TaskSummary is the latest-record view of a single task.
type TaskSummary struct {
	LatestFPS    float64   `json:"latest_fps"`
	TotalIn      int       `json:"total_in"`
	TotalOut     int       `json:"total_out"`
	CurrentCount int       `json:"current_count"`
	Status       string    `json:"status"`
	LastUpdate   time.Time `json:"last_update"`
	TotalUpdates int       `json:"total_updates"`
}

// OverallSummary is the global fold over every task's latest record.
type OverallSummary struct {
	TotalIn  int `json:"total_in"`
	TotalOut int `json:"total_out"`
	NetCount int `json:"net_count"`
}

// Summary is a point-in-time view across all tasks. It is recomputed from
// the latest record per task on every call, never accumulated, so duplicate
// or out-of-order reports cannot drift the totals.
type Summary struct {
	TotalTasks int                    `json:"total_tasks"`
	Tasks      map[string]TaskSummary `json:"tasks"`
	Overall    OverallSummary         `json:"overall"`
}
