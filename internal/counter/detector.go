// Package counter implements the per-stream counting workflow: it
// alternates object detection with cheap per-frame box tracking, feeds the
// resulting boxes through the identity tracker, and applies the midline
// crossing rule to maintain in/out counters.
package counter

import (
	"context"
	"sync"

	"github.com/banshee-data/footfall.report/internal/track"
)

// PersonLabel is the detection category the workflow counts.
const PersonLabel = "person"

// Detection is a single candidate object reported by a detector.
type Detection struct {
	Rect       track.Rect
	Confidence float64
	Label      string
}

// Detector is the external inference collaborator. Implementations report
// candidate objects for one frame; the workflow filters them by label,
// confidence, and geometric validity.
//
// A Detector handed to multiple stream workers must be safe for concurrent
// Detect calls; wrap backends that are not with SerialDetector.
type Detector interface {
	Detect(ctx context.Context, f *Frame) ([]Detection, error)
}

// SerialDetector serialises Detect calls through a mutex so a
// non-concurrency-safe inference backend can be shared across workers.
// This makes the detector the pipeline's concurrency ceiling.
type SerialDetector struct {
	mu sync.Mutex
	d  Detector
}

// NewSerialDetector wraps d with call serialisation.
func NewSerialDetector(d Detector) *SerialDetector {
	return &SerialDetector{d: d}
}

// Detect forwards to the wrapped detector, one caller at a time.
func (s *SerialDetector) Detect(ctx context.Context, f *Frame) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.Detect(ctx, f)
}

// NullDetector reports no detections. It is the shared-detector fallback
// for deployments where every stream carries its own detections, such as
// replay logs.
type NullDetector struct{}

// Detect always returns an empty detection set.
func (NullDetector) Detect(context.Context, *Frame) ([]Detection, error) {
	return nil, nil
}

// filterDetections keeps person detections at or above the confidence
// threshold whose boxes are geometrically valid. Malformed boxes (NaN/Inf
// coordinates, inverted or zero-area rectangles) are dropped silently; a
// bad box is a recoverable detector hiccup, not an error.
func filterDetections(dets []Detection, minConfidence float64) []track.Rect {
	rects := make([]track.Rect, 0, len(dets))
	for _, d := range dets {
		if d.Label != PersonLabel {
			continue
		}
		if d.Confidence < minConfidence {
			continue
		}
		if !d.Rect.Valid() {
			continue
		}
		rects = append(rects, d.Rect)
	}
	return rects
}
