package pool

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/results"
)

func newWorkerID() string {
	return "worker-" + uuid.NewString()[:8]
}

// streamWorker is one pool execution unit. It loops pulling tasks from the
// shared queue and runs each to completion.
type streamWorker struct {
	pool *Pool
	id   string
}

func (w *streamWorker) run(ctx context.Context) {
	tracef("%s: started", w.id)
	for {
		select {
		case <-ctx.Done():
			tracef("%s: context cancelled", w.id)
			return
		case t := <-w.pool.queue:
			if t == nil {
				tracef("%s: sentinel received", w.id)
				return
			}
			w.runTask(ctx, t)
		case <-w.pool.cfg.Clock.After(w.pool.cfg.PollTimeout):
			// Idle poll expired; loop to re-check for shutdown.
		}
	}
}

// runTask drives one task from open to terminal record. Every exit path,
// including a recovered panic, flushes exactly one terminal record so the
// task is never left silently unresolved.
func (w *streamWorker) runTask(ctx context.Context, t *Task) {
	w.pool.setTaskStatus(t.ID, TaskRunning, "")
	opsf("%s: task %s started (%s %s)", w.id, t.ID, t.Kind, t.Source)

	var (
		workflow *counter.Workflow
		terminal bool
	)
	finish := func(status, errMsg string) {
		if terminal {
			return
		}
		terminal = true
		taskStatus := TaskCompleted
		if status == results.StatusError {
			taskStatus = TaskError
		}
		// The pool may already hold a sticky terminal status, e.g. when
		// this worker outlived the Stop join timeout. The record reports
		// whatever the task actually resolved to.
		taskStatus, errMsg = w.pool.setTaskStatus(t.ID, taskStatus, errMsg)
		if taskStatus == TaskError {
			status = results.StatusError
		}
		w.emit(t, workflow, status, errMsg)
		opsf("%s: task %s finished (%s)", w.id, t.ID, status)
	}
	defer func() {
		if r := recover(); r != nil {
			opsf("%s: task %s panicked: %v", w.id, t.ID, r)
			finish(results.StatusError, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	source, detector, err := w.pool.open(ctx, t)
	if err != nil {
		finish(results.StatusError, fmt.Sprintf("open stream: %v", err))
		return
	}
	defer source.Close()
	if detector == nil {
		detector = w.pool.detector
	}

	cfg := w.pool.workflow
	if t.Threshold > 0 {
		cfg.Threshold = t.Threshold
	}
	cfg.Clock = w.pool.cfg.Clock
	workflow = counter.NewWorkflow(t.ID, detector, cfg)

	for {
		frame, err := source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			finish(results.StatusCompleted, "")
			return
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			finish(results.StatusCompleted, "")
			return
		case err != nil:
			finish(results.StatusError, fmt.Sprintf("read frame: %v", err))
			return
		}

		if err := workflow.Process(ctx, frame); err != nil {
			// Only context errors escape Process; a cancelled stream still
			// counts as completed work.
			finish(results.StatusCompleted, "")
			return
		}

		if workflow.Frames()%w.pool.cfg.ReportEvery == 0 {
			w.emit(t, workflow, results.StatusRunning, "")
		}
	}
}

// emit sends one record downstream. The records channel stays open until
// every worker has exited (see Pool.Done), so the send cannot race a close
// during shutdown, and the collector keeps draining so it cannot block
// indefinitely either.
func (w *streamWorker) emit(t *Task, workflow *counter.Workflow, status, errMsg string) {
	r := results.Record{
		TaskID:    t.ID,
		WorkerID:  w.id,
		Timestamp: w.pool.cfg.Clock.Now(),
		Status:    status,
		Error:     errMsg,
	}
	if workflow != nil {
		in, out := workflow.Totals()
		r.TotalIn = in
		r.TotalOut = out
		r.CurrentCount = workflow.Current()
		r.FrameCount = workflow.Frames()
		if status == results.StatusRunning {
			r.FPS = workflow.LapFPS()
		} else {
			r.FPS = workflow.OverallFPS()
		}
	}
	w.pool.records <- r
}
