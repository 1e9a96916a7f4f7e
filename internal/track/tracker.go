// Package track implements centroid-based identity tracking for people
// counting. A Tracker maps per-frame bounding boxes onto stable integer
// identities; a Ledger accumulates each identity's trajectory and its
// counted latch.
package track

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Point is a centroid in frame pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned bounding box in frame pixel coordinates.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Centroid returns the geometric centre of the rectangle.
func (r Rect) Centroid() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Valid reports whether the rectangle is usable as tracker input: all
// coordinates finite, origin non-negative, and strictly positive area.
// Detector output that fails this check must be dropped before Update.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0
}

// Config holds tracker tuning parameters.
type Config struct {
	// MaxDisappeared is the number of consecutive missed frames an identity
	// survives. The miss counter increments before the check, and the
	// identity is deregistered once the counter exceeds this value.
	MaxDisappeared int

	// MaxDistance is the association gate in pixels. A candidate match at
	// exactly this distance is accepted (inclusive comparison).
	MaxDistance float64
}

// DefaultConfig returns the tuning used by the production counters.
func DefaultConfig() Config {
	return Config{
		MaxDisappeared: 40,
		MaxDistance:    50.0,
	}
}

// Tracker assigns stable identities to a stream of per-frame bounding
// boxes using greedy nearest-centroid association. Identities are
// monotonically increasing and never reused within a tracker's lifetime.
//
// A Tracker is owned by a single stream worker and is not safe for
// concurrent use.
type Tracker struct {
	cfg Config

	nextID      int
	objects     map[int]Point
	disappeared map[int]int

	// order holds live identities in registration order so association and
	// iteration are deterministic.
	order []int
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:         cfg,
		objects:     make(map[int]Point),
		disappeared: make(map[int]int),
	}
}

// Len returns the number of currently live identities.
func (t *Tracker) Len() int {
	return len(t.order)
}

// LiveIDs returns the live identities in registration order.
func (t *Tracker) LiveIDs() []int {
	ids := make([]int, len(t.order))
	copy(ids, t.order)
	return ids
}

func (t *Tracker) register(p Point) int {
	id := t.nextID
	t.nextID++
	t.objects[id] = p
	t.disappeared[id] = 0
	t.order = append(t.order, id)
	return id
}

func (t *Tracker) deregister(id int) {
	delete(t.objects, id)
	delete(t.disappeared, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// miss advances the disappearance counter for id and deregisters the
// identity once the counter exceeds MaxDisappeared.
func (t *Tracker) miss(id int) {
	t.disappeared[id]++
	if t.disappeared[id] > t.cfg.MaxDisappeared {
		t.deregister(id)
	}
}

// Update feeds one frame's bounding boxes into the tracker and returns the
// current mapping of live identities to centroids. The returned map is a
// snapshot; mutating it does not affect tracker state.
//
// Boxes must already be validated (Rect.Valid); degenerate input here is a
// programming error upstream, not a tracking condition.
func (t *Tracker) Update(rects []Rect) map[int]Point {
	if len(rects) == 0 {
		// Nothing detected: every live identity takes a miss.
		for _, id := range t.LiveIDs() {
			t.miss(id)
		}
		return t.snapshot()
	}

	inputs := make([]Point, len(rects))
	for i, r := range rects {
		inputs[i] = r.Centroid()
	}

	if len(t.order) == 0 {
		for _, p := range inputs {
			t.register(p)
		}
		return t.snapshot()
	}

	t.associate(inputs)
	return t.snapshot()
}

// associate performs greedy assignment between live identities and input
// centroids on the full Euclidean distance matrix. Rows (identities in
// registration order) are visited in ascending order of their row minimum;
// a stable sort keeps equal minima on the earlier-registered identity.
// Within a row the nearest still-unclaimed column wins, which may not be
// the row minimum when that column went to an earlier row. A pair is
// accepted only when its distance is within MaxDistance (inclusive).
func (t *Tracker) associate(inputs []Point) {
	rows := len(t.order)
	cols := len(inputs)

	d := mat.NewDense(rows, cols, nil)
	for i, id := range t.order {
		obj := t.objects[id]
		for j, in := range inputs {
			dx := obj.X - in.X
			dy := obj.Y - in.Y
			d.Set(i, j, math.Hypot(dx, dy))
		}
	}

	rowMin := make([]float64, rows)
	for i := 0; i < rows; i++ {
		rowMin[i] = mat.Min(d.RowView(i))
	}

	rowOrder := make([]int, rows)
	for i := range rowOrder {
		rowOrder[i] = i
	}
	sort.SliceStable(rowOrder, func(a, b int) bool {
		return rowMin[rowOrder[a]] < rowMin[rowOrder[b]]
	})

	usedRow := make([]bool, rows)
	usedCol := make([]bool, cols)

	for _, i := range rowOrder {
		bestCol := -1
		bestDist := math.Inf(1)
		for j := 0; j < cols; j++ {
			if usedCol[j] {
				continue
			}
			if dist := d.At(i, j); dist < bestDist {
				bestDist = dist
				bestCol = j
			}
		}
		if bestCol < 0 || bestDist > t.cfg.MaxDistance {
			continue
		}
		id := t.order[i]
		t.objects[id] = inputs[bestCol]
		t.disappeared[id] = 0
		usedRow[i] = true
		usedCol[bestCol] = true
	}

	// Unmatched identities take a miss; unmatched inputs become new
	// identities. Snapshot the row ids first since miss() may mutate order.
	unmatched := make([]int, 0, rows)
	for i, id := range t.order {
		if !usedRow[i] {
			unmatched = append(unmatched, id)
		}
	}
	for _, id := range unmatched {
		t.miss(id)
	}
	for j, p := range inputs {
		if !usedCol[j] {
			t.register(p)
		}
	}
}

func (t *Tracker) snapshot() map[int]Point {
	out := make(map[int]Point, len(t.objects))
	for id, p := range t.objects {
		out[id] = p
	}
	return out
}
