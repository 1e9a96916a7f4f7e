package counter

import "github.com/banshee-data/footfall.report/internal/track"

// BoxTracker is a cheap short-lived tracker that carries one detection box
// across the frames between detection passes. Implementations live only
// until the next detect phase reseeds the workflow.
type BoxTracker interface {
	// Advance moves the tracker one frame forward and returns its current
	// rectangle. ok is false once the tracker has lost its target (e.g.
	// the box drifted outside the frame).
	Advance(f *Frame) (r track.Rect, ok bool)
}

// NewBoxTrackerFunc constructs a BoxTracker seeded from a detection box.
// vx, vy is the per-frame velocity estimated from the previous detection
// pass (zero for boxes with no prior match). Integrations with a real
// correlation tracker plug in here; the default is a constant-velocity
// coast that needs no pixel access.
type NewBoxTrackerFunc func(f *Frame, r track.Rect, vx, vy float64) BoxTracker

// driftTracker advances a box by a fixed per-frame velocity. Between
// detection passes this is the same constant-velocity model the identity
// tracker's consumers assume; it is reseeded from fresh detections every
// detect phase so drift never accumulates beyond one skip interval.
type driftTracker struct {
	rect track.Rect
	vx   float64
	vy   float64
}

// NewDriftTracker is the default NewBoxTrackerFunc.
func NewDriftTracker(_ *Frame, r track.Rect, vx, vy float64) BoxTracker {
	return &driftTracker{rect: r, vx: vx, vy: vy}
}

func (t *driftTracker) Advance(f *Frame) (track.Rect, bool) {
	t.rect.X += t.vx
	t.rect.Y += t.vy

	// Lost once the box centre leaves the frame.
	c := t.rect.Centroid()
	if c.X < 0 || c.Y < 0 || c.X >= float64(f.Width) || c.Y >= float64(f.Height) {
		return track.Rect{}, false
	}
	if !t.rect.Valid() {
		return track.Rect{}, false
	}
	return t.rect, true
}
