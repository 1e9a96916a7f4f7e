package track

import "gonum.org/v1/gonum/stat"

// TrackableObject is the per-identity record kept by a Ledger: the full
// centroid trajectory and the one-way counted latch.
type TrackableObject struct {
	ID        int
	Centroids []Point
	Counted   bool
}

// MarkCounted sets the counted latch. The latch is one-way: an object that
// has contributed a crossing event never contributes another.
func (o *TrackableObject) MarkCounted() {
	o.Counted = true
}

// Ledger wraps tracker output with per-identity trajectories. It is owned
// by the same single worker as its Tracker and needs no locking.
type Ledger struct {
	objects map[int]*TrackableObject
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{objects: make(map[int]*TrackableObject)}
}

// Observe records the latest centroid for an identity, creating the object
// on first sighting. For existing objects, direction is the vertical delta
// between c and the mean Y of the trajectory recorded before this
// observation; negative means upward movement. On first sighting direction
// is zero and first is true.
func (l *Ledger) Observe(id int, c Point) (obj *TrackableObject, direction float64, first bool) {
	obj, ok := l.objects[id]
	if !ok {
		obj = &TrackableObject{ID: id, Centroids: []Point{c}}
		l.objects[id] = obj
		return obj, 0, true
	}

	ys := make([]float64, len(obj.Centroids))
	for i, p := range obj.Centroids {
		ys[i] = p.Y
	}
	direction = c.Y - stat.Mean(ys, nil)
	obj.Centroids = append(obj.Centroids, c)
	return obj, direction, false
}

// Lookup returns the object for an identity, or nil if never observed.
func (l *Ledger) Lookup(id int) *TrackableObject {
	return l.objects[id]
}

// Len returns the number of identities ever observed.
func (l *Ledger) Len() int {
	return len(l.objects)
}
