package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/footfall.report/internal/results"
)

// UpsertTask records a task's identity and source, updating the row if the
// task was seen in a previous run.
func (db *DB) UpsertTask(taskID, kind, source, alias string, priority int) error {
	_, err := db.Exec(`
		INSERT INTO tasks (task_id, kind, source, alias, priority, status)
		VALUES (?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(task_id) DO UPDATE SET
			kind = excluded.kind,
			source = excluded.source,
			alias = excluded.alias,
			priority = excluded.priority,
			status = 'pending',
			error = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, taskID, kind, source, alias, priority)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", taskID, err)
	}
	return nil
}

// UpdateTaskStatus moves a task through its lifecycle.
func (db *DB) UpdateTaskStatus(taskID, status, errMsg string) error {
	_, err := db.Exec(`
		UPDATE tasks
		SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ?
	`, status, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

// InsertRecord appends one result record.
func (db *DB) InsertRecord(r results.Record) error {
	_, err := db.Exec(`
		INSERT INTO result_records
			(task_id, worker_id, timestamp, fps, total_in, total_out, current_count, status, frame_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TaskID, r.WorkerID, r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.FPS, r.TotalIn, r.TotalOut, r.CurrentCount, r.Status, r.FrameCount, r.Error)
	if err != nil {
		return fmt.Errorf("insert record for %s: %w", r.TaskID, err)
	}
	return nil
}

// RecordsForTask returns a task's full record history in insertion order.
func (db *DB) RecordsForTask(taskID string) ([]results.Record, error) {
	rows, err := db.Query(`
		SELECT task_id, worker_id, timestamp, fps, total_in, total_out, current_count, status, frame_count, error
		FROM result_records
		WHERE task_id = ?
		ORDER BY record_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query records for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []results.Record
	for rows.Next() {
		var r results.Record
		var ts string
		if err := rows.Scan(&r.TaskID, &r.WorkerID, &ts, &r.FPS,
			&r.TotalIn, &r.TotalOut, &r.CurrentCount, &r.Status, &r.FrameCount, &r.Error); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse record timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TaskIDs returns every task ID known to the store.
func (db *DB) TaskIDs() ([]string, error) {
	rows, err := db.Query(`SELECT task_id FROM tasks ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
