package results

import (
	"sort"
	"sync"
)

// Aggregator is a thread-safe append-only store of worker records keyed by
// task. Writers call Add (or feed a channel through Collect); readers take
// consistent snapshots through Latest, All and Summary.
type Aggregator struct {
	mu      sync.RWMutex
	byTask  map[string][]Record
	taskIDs []string
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byTask: make(map[string][]Record)}
}

// Add appends one record to its task's history.
func (a *Aggregator) Add(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byTask[r.TaskID]; !ok {
		a.taskIDs = append(a.taskIDs, r.TaskID)
	}
	a.byTask[r.TaskID] = append(a.byTask[r.TaskID], r)
}

// Collect drains records from ch until it is closed, adding each one and
// invoking any hooks in order. It is intended to run as the single
// collector goroutine owned by the orchestrator.
func (a *Aggregator) Collect(ch <-chan Record, hooks ...func(Record)) {
	for r := range ch {
		a.Add(r)
		for _, h := range hooks {
			h(r)
		}
	}
}

// LatestFor returns the most recent record for a task.
func (a *Aggregator) LatestFor(taskID string) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	history := a.byTask[taskID]
	if len(history) == 0 {
		return Record{}, false
	}
	return history[len(history)-1], true
}

// Latest returns the most recent record per task.
func (a *Aggregator) Latest() map[string]Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Record, len(a.byTask))
	for id, history := range a.byTask {
		out[id] = history[len(history)-1]
	}
	return out
}

// All returns a copy of every task's full history.
func (a *Aggregator) All() map[string][]Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]Record, len(a.byTask))
	for id, history := range a.byTask {
		out[id] = append([]Record(nil), history...)
	}
	return out
}

// TaskIDs returns the known task IDs in first-seen order.
func (a *Aggregator) TaskIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.taskIDs...)
}

// Len returns the total number of stored records.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, history := range a.byTask {
		n += len(history)
	}
	return n
}

// Summary folds the latest record of every task into a point-in-time view.
// The fold only ever consults each task's latest record, so the result is
// identical regardless of the order records arrived in.
func (a *Aggregator) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Summary{
		TotalTasks: len(a.byTask),
		Tasks:      make(map[string]TaskSummary, len(a.byTask)),
	}

	ids := make([]string, 0, len(a.byTask))
	for id := range a.byTask {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		history := a.byTask[id]
		latest := history[len(history)-1]
		s.Tasks[id] = TaskSummary{
			LatestFPS:    latest.FPS,
			TotalIn:      latest.TotalIn,
			TotalOut:     latest.TotalOut,
			CurrentCount: latest.CurrentCount,
			Status:       latest.Status,
			LastUpdate:   latest.Timestamp,
			TotalUpdates: len(history),
		}
		s.Overall.TotalIn += latest.TotalIn
		s.Overall.TotalOut += latest.TotalOut
	}
	s.Overall.NetCount = s.Overall.TotalIn - s.Overall.TotalOut
	return s
}
