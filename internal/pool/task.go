// Package pool runs counting tasks across a fixed set of stream workers.
// Tasks enter a shared queue; each worker pulls one, opens the stream,
// drives the counting workflow to completion and reports progress records.
package pool

import (
	"context"
	"fmt"

	"github.com/banshee-data/footfall.report/internal/counter"
)

// Task kinds.
const (
	KindCamera = "camera"
	KindVideo  = "video"
)

// Default task priorities. Live cameras outrank recorded videos.
const (
	CameraPriority = 1
	VideoPriority  = 2
)

// Task statuses. A task moves pending → running → completed|error.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskError     = "error"
)

// Task is one counting job: a stream source plus its per-task tuning.
type Task struct {
	// ID uniquely identifies the task, e.g. "camera_lobby" or "video_entrance".
	ID string

	// Kind is KindCamera or KindVideo.
	Kind string

	// Source locates the stream: a device identifier for cameras, a file
	// path for videos.
	Source string

	// Alias is a human-readable label for logs and summaries.
	Alias string

	// Threshold overrides the occupancy alert level for this task. Zero
	// keeps the pool default.
	Threshold int

	// Priority is a scheduling hint carried through configuration,
	// reporting and persistence. Zero takes the kind default (cameras 1,
	// videos 2). The queue itself dispatches FIFO.
	Priority int

	// Status and Err are managed by the pool.
	Status string
	Err    string
}

// Validate checks the task is well-formed before it enters the queue.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if t.Kind != KindCamera && t.Kind != KindVideo {
		return fmt.Errorf("task %s: unknown kind %q", t.ID, t.Kind)
	}
	if t.Source == "" {
		return fmt.Errorf("task %s: no source", t.ID)
	}
	if t.Priority < 0 {
		return fmt.Errorf("task %s: negative priority %d", t.ID, t.Priority)
	}
	return nil
}

// OpenStreamFunc acquires the frame source for a task. A nil Detector in
// the return means the pool's shared detector should be used; sources that
// carry their own detections (replay logs) return a paired detector
// instead.
type OpenStreamFunc func(ctx context.Context, t *Task) (counter.Source, counter.Detector, error)
