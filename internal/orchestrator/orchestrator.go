// Package orchestrator wires the counting system together: it turns the
// loaded configuration into a worker pool, collects worker records into the
// aggregator, mirrors them to the optional store and metrics, and exposes
// the add/start/stop/summary/export operations the outer layers call.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/banshee-data/footfall.report/internal/config"
	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/db"
	"github.com/banshee-data/footfall.report/internal/metrics"
	"github.com/banshee-data/footfall.report/internal/pool"
	"github.com/banshee-data/footfall.report/internal/results"
	"github.com/banshee-data/footfall.report/internal/timeutil"
)

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithStore mirrors tasks and records into the sqlite store.
func WithStore(store *db.DB) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// Orchestrator owns the pool, the aggregator and the collector goroutine.
type Orchestrator struct {
	cfg   *config.Config
	pool  *pool.Pool
	agg   *results.Aggregator
	clock timeutil.Clock

	store   *db.DB
	metrics *metrics.Metrics

	records     chan results.Record
	collectDone chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds an orchestrator from the loaded configuration. detector is
// the shared inference backend; open acquires each task's stream.
func New(detector counter.Detector, cfg *config.Config, open pool.OpenStreamFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		agg:         results.NewAggregator(),
		clock:       timeutil.RealClock{},
		records:     make(chan results.Record, 256),
		collectDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	workflow := counter.Config{
		SkipFrames:    cfg.GetSkipFrames(),
		MinConfidence: cfg.GetMinConfidence(),
		OnAlert:       o.onAlert,
	}
	workflow.Tracker.MaxDisappeared = cfg.GetMaxDisappeared()
	workflow.Tracker.MaxDistance = cfg.GetMaxDistance()

	poolCfg := pool.Config{
		Workers:     cfg.GetWorkerCount(),
		QueueSize:   cfg.GetQueueSize(),
		PollTimeout: cfg.GetPollTimeout(),
		ReportEvery: cfg.GetReportEvery(),
		JoinTimeout: cfg.GetJoinTimeout(),
		Clock:       o.clock,
	}
	o.pool = pool.New(detector, open, o.records, poolCfg, workflow)
	return o
}

func (o *Orchestrator) onAlert(taskID string, current int) {
	opsf("occupancy alert: task %s at %d people", taskID, current)
	if o.metrics != nil {
		o.metrics.OccupancyAlerts.Inc()
	}
}

// AddCameraTask schedules an endless camera stream. An empty id gets a
// generated one. A zero threshold takes the configured camera default and
// a zero priority takes the camera default.
func (o *Orchestrator) AddCameraTask(id, source, alias string, threshold, priority int) (string, error) {
	return o.addTask(pool.KindCamera, id, source, alias, threshold, priority, o.cfg.GetCameraAlertThreshold())
}

// AddVideoTask schedules a finite video stream. An empty id gets a
// generated one. A zero threshold takes the configured video default and
// a zero priority takes the video default.
func (o *Orchestrator) AddVideoTask(id, source, alias string, threshold, priority int) (string, error) {
	return o.addTask(pool.KindVideo, id, source, alias, threshold, priority, o.cfg.GetVideoAlertThreshold())
}

func (o *Orchestrator) addTask(kind, id, source, alias string, threshold, priority, defaultThreshold int) (string, error) {
	if id == "" {
		id = uuid.NewString()[:8]
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	taskID := fmt.Sprintf("%s_%s", kind, id)

	t := &pool.Task{
		ID:        taskID,
		Kind:      kind,
		Source:    source,
		Alias:     alias,
		Threshold: threshold,
		Priority:  priority,
	}
	if err := o.pool.Add(t); err != nil {
		return "", err
	}
	if o.store != nil {
		if err := o.store.UpsertTask(taskID, kind, source, alias, t.Priority); err != nil {
			opsf("store: %v", err)
		}
	}
	return taskID, nil
}

// AddConfiguredTasks schedules every enabled camera and video from the
// configuration. It keeps going past individual failures and returns the
// IDs it scheduled along with the combined error.
func (o *Orchestrator) AddConfiguredTasks() ([]string, error) {
	var added []string
	var errs *multierror.Error

	for _, e := range o.cfg.Cameras {
		if !e.GetEnabled() {
			continue
		}
		id, err := o.AddCameraTask(e.ID, e.Source, e.Alias, e.GetThreshold(o.cfg.GetCameraAlertThreshold()), e.GetPriority(pool.CameraPriority))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("camera %s: %w", e.Source, err))
			continue
		}
		added = append(added, id)
	}
	for _, e := range o.cfg.Videos {
		if !e.GetEnabled() {
			continue
		}
		id, err := o.AddVideoTask(e.ID, e.Source, e.Alias, e.GetThreshold(o.cfg.GetVideoAlertThreshold()), e.GetPriority(pool.VideoPriority))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("video %s: %w", e.Source, err))
			continue
		}
		added = append(added, id)
	}
	return added, errs.ErrorOrNil()
}

// Start launches the collector and the worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true

	go o.collect()
	o.pool.Start(ctx)
	opsf("started")
	return nil
}

// collect is the single goroutine draining worker records into the
// aggregator and the optional store/metrics mirrors.
func (o *Orchestrator) collect() {
	defer close(o.collectDone)

	lastFrames := make(map[string]int)
	lastIn := make(map[string]int)
	lastOut := make(map[string]int)

	o.agg.Collect(o.records, func(r results.Record) {
		if o.metrics != nil {
			o.metrics.RecordsCollected.Inc()
			if d := r.FrameCount - lastFrames[r.TaskID]; d > 0 {
				o.metrics.FramesProcessed.WithLabelValues(r.TaskID).Add(float64(d))
			}
			if d := r.TotalIn - lastIn[r.TaskID]; d > 0 {
				o.metrics.CountEvents.WithLabelValues(r.TaskID, "in").Add(float64(d))
			}
			if d := r.TotalOut - lastOut[r.TaskID]; d > 0 {
				o.metrics.CountEvents.WithLabelValues(r.TaskID, "out").Add(float64(d))
			}
			lastFrames[r.TaskID] = r.FrameCount
			lastIn[r.TaskID] = r.TotalIn
			lastOut[r.TaskID] = r.TotalOut

			counts := o.pool.TaskCount()
			for _, status := range []string{pool.TaskPending, pool.TaskRunning, pool.TaskCompleted, pool.TaskError} {
				o.metrics.TasksByStatus.WithLabelValues(status).Set(float64(counts[status]))
			}
			o.metrics.ActiveWorkers.Set(float64(counts[pool.TaskRunning]))
		}
		if o.store != nil {
			if err := o.store.InsertRecord(r); err != nil {
				opsf("store: %v", err)
			}
			if r.Terminal() {
				status := pool.TaskCompleted
				if r.Status == results.StatusError {
					status = pool.TaskError
				}
				if err := o.store.UpdateTaskStatus(r.TaskID, status, r.Error); err != nil {
					opsf("store: %v", err)
				}
			}
		}
	})
}

// Stop shuts the pool down, then drains the collector. Safe to call more
// than once. When workers outlive the pool's join timeout their tasks come
// back already marked errored; those statuses are mirrored to the store and
// the record channel is left open until the stragglers actually exit, so a
// late terminal record lands in the aggregator instead of a closed channel.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.started || o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	err := o.pool.Stop()
	if err == nil {
		close(o.records)
		<-o.collectDone
		opsf("stopped")
		return nil
	}

	opsf("stopped with stragglers: %v", err)
	if o.store != nil {
		for _, t := range o.pool.Tasks() {
			if t.Status == pool.TaskError && t.Err == pool.StragglerError {
				if serr := o.store.UpdateTaskStatus(t.ID, t.Status, t.Err); serr != nil {
					opsf("store: %v", serr)
				}
			}
		}
	}
	go func() {
		<-o.pool.Done()
		close(o.records)
	}()
	return err
}

// GetSummary returns a point-in-time fold over every task's latest record.
func (o *Orchestrator) GetSummary() results.Summary {
	return o.agg.Summary()
}

// Results returns the aggregator for read access.
func (o *Orchestrator) Results() *results.Aggregator {
	return o.agg
}

// Tasks snapshots every known task.
func (o *Orchestrator) Tasks() []pool.Task {
	return o.pool.Tasks()
}

// ExportResults writes the collected results to the configured output
// directory in the requested format ("json" or "csv") and returns the
// paths written.
func (o *Orchestrator) ExportResults(format string) ([]string, error) {
	now := o.clock.Now()
	switch format {
	case "json":
		path, err := o.agg.ExportJSONFile(o.cfg.GetOutputDir(), now)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	case "csv":
		return o.agg.ExportCSVFiles(o.cfg.GetOutputDir(), now)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
