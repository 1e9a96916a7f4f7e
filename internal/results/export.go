package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// exportSnapshot is the JSON export envelope.
type exportSnapshot struct {
	ExportTime      time.Time           `json:"export_time"`
	Summary         Summary             `json:"summary"`
	DetailedResults map[string][]Record `json:"detailed_results"`
}

// csvHeader mirrors the Record field order.
var csvHeader = []string{
	"task_id", "worker_id", "timestamp", "fps",
	"total_in", "total_out", "current_count",
	"status", "frame_count", "error",
}

// WriteJSON writes the full export snapshot (summary plus per-task
// histories) to w as indented JSON.
func (a *Aggregator) WriteJSON(w io.Writer, now time.Time) error {
	snap := exportSnapshot{
		ExportTime:      now,
		Summary:         a.Summary(),
		DetailedResults: a.All(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// WriteCSV writes one task's full history to w, one row per record.
func (a *Aggregator) WriteCSV(w io.Writer, taskID string) error {
	history, ok := a.All()[taskID]
	if !ok {
		return fmt.Errorf("no results for task %q", taskID)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range history {
		row := []string{
			r.TaskID,
			r.WorkerID,
			r.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(r.FPS, 'f', 2, 64),
			strconv.Itoa(r.TotalIn),
			strconv.Itoa(r.TotalOut),
			strconv.Itoa(r.CurrentCount),
			r.Status,
			strconv.Itoa(r.FrameCount),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSONFile writes the JSON snapshot to a timestamped file in dir and
// returns the path written.
func (a *Aggregator) ExportJSONFile(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("counting_results_%s.json", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := a.WriteJSON(f, now); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ExportCSVFiles writes one CSV file per task into dir and returns the
// paths written.
func (a *Aggregator) ExportCSVFiles(dir string, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	stamp := now.Format("20060102_150405")
	var paths []string
	for _, taskID := range a.TaskIDs() {
		path := filepath.Join(dir, fmt.Sprintf("counting_results_%s_%s.csv", taskID, stamp))
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create export file: %w", err)
		}
		if err := a.WriteCSV(f, taskID); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
