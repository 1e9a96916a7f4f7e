package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/results"
	"github.com/banshee-data/footfall.report/internal/timeutil"
)

// ErrDuplicateSource is returned by Add when another task already covers
// the same stream source.
var ErrDuplicateSource = errors.New("source already has a task")

// ErrQueueFull is returned by Add when the task queue has no room.
var ErrQueueFull = errors.New("task queue is full")

// StragglerError is recorded on a task whose worker was still running when
// the Stop join timeout expired.
const StragglerError = "did not terminate before join timeout"

// Config holds pool tuning parameters.
type Config struct {
	// Workers is the number of concurrent stream workers.
	Workers int

	// QueueSize bounds the pending-task queue.
	QueueSize int

	// PollTimeout bounds how long an idle worker waits for a task before
	// re-checking for shutdown.
	PollTimeout time.Duration

	// ReportEvery is the progress-record cadence in processed frames.
	ReportEvery int

	// JoinTimeout bounds how long Stop waits for workers to drain.
	JoinTimeout time.Duration

	// Clock drives the poll and join timeouts. Nil selects the real clock.
	Clock timeutil.Clock
}

// DefaultConfig returns the pool tuning used in production.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   32,
		PollTimeout: time.Second,
		ReportEvery: 10,
		JoinTimeout: 10 * time.Second,
	}
}

// Pool owns the task queue and the stream workers. Records flow out on the
// channel handed to New; the pool never closes that channel. The caller
// closes it once every worker has exited: after Stop returns nil, or after
// Done fires when Stop gave up on stragglers.
type Pool struct {
	cfg      Config
	workflow counter.Config
	detector counter.Detector
	open     OpenStreamFunc
	records  chan<- results.Record

	queue       chan *Task
	workersDone chan struct{}

	mu       sync.Mutex
	tasks    map[string]*Task
	bySource map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a pool. detector is the shared inference backend handed to
// workers whose stream does not carry its own; workflow configures each
// task's counting loop.
func New(detector counter.Detector, open OpenStreamFunc, records chan<- results.Record, cfg Config, workflow counter.Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultConfig().ReportEvery
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultConfig().JoinTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Pool{
		cfg:         cfg,
		workflow:    workflow,
		detector:    detector,
		open:        open,
		records:     records,
		queue:       make(chan *Task, cfg.QueueSize),
		workersDone: make(chan struct{}),
		tasks:       make(map[string]*Task),
		bySource:    make(map[string]string),
	}
}

// Add validates and enqueues a task. Each stream source may only ever have
// one task; a second Add for the same source is rejected so two workers
// can never fight over one camera.
func (p *Pool) Add(t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if _, ok := p.tasks[t.ID]; ok {
		p.mu.Unlock()
		return fmt.Errorf("task %s already added", t.ID)
	}
	if owner, ok := p.bySource[t.Source]; ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s held by task %s", ErrDuplicateSource, t.Source, owner)
	}
	if t.Priority == 0 {
		if t.Kind == KindCamera {
			t.Priority = CameraPriority
		} else {
			t.Priority = VideoPriority
		}
	}
	t.Status = TaskPending
	p.tasks[t.ID] = t
	p.bySource[t.Source] = t.ID
	p.mu.Unlock()

	select {
	case p.queue <- t:
		opsf("queued task %s (%s %s)", t.ID, t.Kind, t.Source)
		return nil
	default:
		p.mu.Lock()
		delete(p.tasks, t.ID)
		delete(p.bySource, t.Source)
		p.mu.Unlock()
		return ErrQueueFull
	}
}

// Start launches the workers. It returns immediately; workers run until
// Stop is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		w := &streamWorker{pool: p, id: newWorkerID()}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(p.ctx)
		}()
	}
	go func() {
		p.wg.Wait()
		close(p.workersDone)
	}()
	opsf("started %d workers", p.cfg.Workers)
}

// Done is closed once every worker has exited, including workers that
// outlive the Stop join timeout. Only valid after Start.
func (p *Pool) Done() <-chan struct{} {
	return p.workersDone
}

// Stop shuts the pool down: it cancels the worker context, enqueues one
// nil sentinel per worker so idle workers wake immediately, and joins with
// a bounded timeout. Workers mid-frame finish their current iteration and
// flush a terminal record before exiting.
func (p *Pool) Stop() error {
	var err error
	p.once.Do(func() {
		if p.cancel == nil {
			return
		}
		p.cancel()
		for i := 0; i < p.cfg.Workers; i++ {
			select {
			case p.queue <- nil:
			default:
			}
		}

		select {
		case <-p.workersDone:
			opsf("all workers drained")
		case <-p.cfg.Clock.After(p.cfg.JoinTimeout):
			stuck := p.failStragglers()
			err = fmt.Errorf("pool stop: workers did not drain within %s, tasks still running: %v", p.cfg.JoinTimeout, stuck)
		}
	})
	return err
}

// failStragglers marks every task still running after the join timeout as
// errored and logs it, so an unresponsive stream never leaves its task
// silently unresolved. Returns the affected task IDs.
func (p *Pool) failStragglers() []string {
	p.mu.Lock()
	var stuck []string
	for id, t := range p.tasks {
		if t.Status == TaskRunning {
			t.Status = TaskError
			t.Err = StragglerError
			stuck = append(stuck, id)
		}
	}
	p.mu.Unlock()

	sort.Strings(stuck)
	for _, id := range stuck {
		opsf("task %s did not terminate before join timeout", id)
	}
	return stuck
}

// Tasks returns a snapshot of every known task, sorted by ID.
func (p *Pool) Tasks() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TaskCount returns the number of known tasks by status.
func (p *Pool) TaskCount() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int, 4)
	for _, t := range p.tasks {
		counts[t.Status]++
	}
	return counts
}

// setTaskStatus applies a status transition and returns what the task now
// holds. Terminal statuses are sticky: once a task is completed or errored
// (a straggler force-failed by Stop, say) later transitions are dropped, so
// a worker that finally unblocks cannot resurrect a task already declared
// dead.
func (p *Pool) setTaskStatus(id, status, errMsg string) (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		return status, errMsg
	}
	if t.Status == TaskCompleted || t.Status == TaskError {
		return t.Status, t.Err
	}
	t.Status = status
	t.Err = errMsg
	return status, errMsg
}
