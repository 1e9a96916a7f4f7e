package counter

import (
	"context"
	"math"
	"sort"

	"github.com/banshee-data/footfall.report/internal/timeutil"
	"github.com/banshee-data/footfall.report/internal/track"
)

// Phase names reported by the workflow for the frame most recently
// processed.
const (
	PhaseDetecting = "detecting"
	PhaseTracking  = "tracking"
)

// Config holds workflow tuning parameters.
type Config struct {
	// SkipFrames is the detection cadence: the detector runs on every Nth
	// frame and the cheap box trackers carry the boxes in between.
	SkipFrames int

	// MinConfidence is the detection confidence floor.
	MinConfidence float64

	// Threshold is the occupancy level at which the alert hook fires. Zero
	// disables alerts.
	Threshold int

	// Tracker configures the identity tracker owned by this workflow.
	Tracker track.Config

	// NewBoxTracker constructs the per-frame trackers seeded each detect
	// phase. Nil selects the constant-velocity drift tracker.
	NewBoxTracker NewBoxTrackerFunc

	// OnFrameProcessed, when non-nil, is called after every processed frame.
	OnFrameProcessed func(taskID string, f *Frame)

	// OnAlert, when non-nil, is called when an IN event raises the current
	// occupancy to Threshold or beyond.
	OnAlert func(taskID string, current int)

	// Clock drives FPS accounting. Nil selects the real clock.
	Clock timeutil.Clock
}

// DefaultConfig returns the workflow tuning used in production.
func DefaultConfig() Config {
	return Config{
		SkipFrames:    30,
		MinConfidence: 0.4,
		Tracker:       track.DefaultConfig(),
	}
}

// seededTracker pairs a live box tracker with the rectangle it reported
// last, so the next detect phase can estimate per-frame velocities.
type seededTracker struct {
	tracker BoxTracker
	last    track.Rect
}

// Workflow runs the counting loop for one stream. It owns its identity
// tracker and ledger exclusively; a Workflow must only be driven from a
// single goroutine.
type Workflow struct {
	taskID   string
	cfg      Config
	detector Detector

	tracker *track.Tracker
	ledger  *track.Ledger
	boxes   []seededTracker
	meter   *fpsMeter

	frames   int
	phase    string
	totalIn  int
	totalOut int
}

// NewWorkflow creates a counting workflow for one stream.
func NewWorkflow(taskID string, detector Detector, cfg Config) *Workflow {
	if cfg.SkipFrames <= 0 {
		cfg.SkipFrames = DefaultConfig().SkipFrames
	}
	if cfg.NewBoxTracker == nil {
		cfg.NewBoxTracker = NewDriftTracker
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Workflow{
		taskID:   taskID,
		cfg:      cfg,
		detector: detector,
		tracker:  track.NewTracker(cfg.Tracker),
		ledger:   track.NewLedger(),
		meter:    newFPSMeter(cfg.Clock),
	}
}

// Process feeds one frame through the workflow: detect or advance box
// trackers, update identities, and apply the crossing rule.
func (w *Workflow) Process(ctx context.Context, f *Frame) error {
	var rects []track.Rect

	if w.frames%w.cfg.SkipFrames == 0 {
		w.phase = PhaseDetecting
		dets, err := w.detector.Detect(ctx, f)
		if err != nil {
			// A failed inference coasts the existing trackers rather than
			// killing the stream; persistent failure surfaces through the
			// source or the operator logs.
			opsf("[%s] detect failed on frame %d: %v", w.taskID, f.Index, err)
			rects = w.advanceTrackers(f)
		} else {
			fresh := filterDetections(dets, w.cfg.MinConfidence)
			w.reseedTrackers(f, fresh)
			rects = fresh
			tracef("[%s] frame %d: %d detections, %d kept", w.taskID, f.Index, len(dets), len(fresh))
		}
	} else {
		w.phase = PhaseTracking
		rects = w.advanceTrackers(f)
	}

	objects := w.tracker.Update(rects)
	w.applyCrossingRule(objects, f.Height)

	w.frames++
	w.meter.Tick()
	if w.cfg.OnFrameProcessed != nil {
		w.cfg.OnFrameProcessed(w.taskID, f)
	}
	return ctx.Err()
}

// advanceTrackers steps every live box tracker one frame and collects the
// surviving rectangles.
func (w *Workflow) advanceTrackers(f *Frame) []track.Rect {
	rects := make([]track.Rect, 0, len(w.boxes))
	kept := w.boxes[:0]
	for _, s := range w.boxes {
		r, ok := s.tracker.Advance(f)
		if !ok {
			continue
		}
		s.last = r
		kept = append(kept, s)
		rects = append(rects, r)
	}
	w.boxes = kept
	return rects
}

// reseedTrackers replaces the box tracker set from fresh detections. Each
// new box inherits a per-frame velocity from the nearest previous box (if
// one sits within the association gate), spreading the observed
// displacement across the skip interval.
func (w *Workflow) reseedTrackers(f *Frame, fresh []track.Rect) {
	prev := w.boxes
	w.boxes = make([]seededTracker, 0, len(fresh))

	gate := w.cfg.Tracker.MaxDistance
	for _, r := range fresh {
		var vx, vy float64
		c := r.Centroid()
		best := math.Inf(1)
		for _, p := range prev {
			pc := p.last.Centroid()
			d := math.Hypot(c.X-pc.X, c.Y-pc.Y)
			if d < best && d <= gate {
				best = d
				vx = (c.X - pc.X) / float64(w.cfg.SkipFrames)
				vy = (c.Y - pc.Y) / float64(w.cfg.SkipFrames)
			}
		}
		w.boxes = append(w.boxes, seededTracker{
			tracker: w.cfg.NewBoxTracker(f, r, vx, vy),
			last:    r,
		})
	}
}

// applyCrossingRule walks the current identities in ascending order and
// counts midline crossings at most once per identity:
//
//	direction < 0 and centroid above the midline → OUT
//	direction > 0 and centroid below the midline → IN
//
// where direction is the vertical delta against the mean of the identity's
// previous centroid Ys. Identities that never cross the midline are never
// counted.
func (w *Workflow) applyCrossingRule(objects map[int]track.Point, frameHeight int) {
	midline := float64(frameHeight) / 2

	ids := make([]int, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		c := objects[id]
		obj, direction, first := w.ledger.Observe(id, c)
		if first || obj.Counted {
			continue
		}

		switch {
		case direction < 0 && c.Y < midline:
			w.totalOut++
			obj.MarkCounted()
			diagf("[%s] OUT event: identity %d, direction %.2f, y %.1f", w.taskID, id, direction, c.Y)
		case direction > 0 && c.Y > midline:
			w.totalIn++
			obj.MarkCounted()
			diagf("[%s] IN event: identity %d, direction %.2f, y %.1f", w.taskID, id, direction, c.Y)
			if w.cfg.Threshold > 0 && w.Current() >= w.cfg.Threshold && w.cfg.OnAlert != nil {
				w.cfg.OnAlert(w.taskID, w.Current())
			}
		}
	}
}

// Totals returns the cumulative in and out counts.
func (w *Workflow) Totals() (in, out int) {
	return w.totalIn, w.totalOut
}

// Current returns the running occupancy (in minus out).
func (w *Workflow) Current() int {
	return w.totalIn - w.totalOut
}

// Frames returns the number of frames processed so far.
func (w *Workflow) Frames() int {
	return w.frames
}

// Phase reports which phase handled the most recent frame.
func (w *Workflow) Phase() string {
	return w.phase
}

// LapFPS returns the throughput since the previous LapFPS call.
func (w *Workflow) LapFPS() float64 {
	return w.meter.Lap()
}

// OverallFPS returns the throughput across the whole run.
func (w *Workflow) OverallFPS() float64 {
	return w.meter.Overall()
}
