// Package replay plays pre-recorded detection logs as frame streams. A log
// is JSONL, one line per frame, each line carrying the frame dimensions and
// the detector output for that frame:
//
//	{"w":500,"h":375,"boxes":[{"x":180,"y":92,"w":34,"h":88,"conf":0.87,"label":"person"}]}
//
// Replay streams stand in for live cameras and decoded video in tests, the
// replay-count tool and dev-mode runs: the counting pipeline downstream of
// the detector is identical.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/pool"
	"github.com/banshee-data/footfall.report/internal/track"
)

// logBox is one detection on one frame of the log.
type logBox struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Conf  float64 `json:"conf"`
	Label string  `json:"label"`
}

// logFrame is one line of the log.
type logFrame struct {
	W     int      `json:"w"`
	H     int      `json:"h"`
	Boxes []logBox `json:"boxes"`
}

// Log is a fully parsed detection log.
type Log struct {
	frames []logFrame
}

// Parse reads a JSONL detection log from r.
func Parse(r io.Reader) (*Log, error) {
	var l Log
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var f logFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("replay log line %d: %w", line, err)
		}
		if f.W <= 0 || f.H <= 0 {
			return nil, fmt.Errorf("replay log line %d: bad frame size %dx%d", line, f.W, f.H)
		}
		l.frames = append(l.frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay log: %w", err)
	}
	if len(l.frames) == 0 {
		return nil, fmt.Errorf("replay log is empty")
	}
	return &l, nil
}

// Load parses the detection log at path.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Len returns the number of frames in the log.
func (l *Log) Len() int { return len(l.frames) }

// Source returns a frame source that plays the log once (loop false) or
// forever (loop true). Looping stands in for an endless camera feed.
func (l *Log) Source(loop bool) counter.Source {
	return &logSource{log: l, loop: loop}
}

// Detector returns the detector paired with this log's sources: it replays
// the recorded boxes for each frame index (modulo log length, so looped
// sources line up).
func (l *Log) Detector() counter.Detector {
	return &logDetector{log: l}
}

type logSource struct {
	mu   sync.Mutex
	log  *Log
	loop bool
	next int
}

func (s *logSource) Next(ctx context.Context) (*counter.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loop && s.next >= len(s.log.frames) {
		return nil, io.EOF
	}
	lf := s.log.frames[s.next%len(s.log.frames)]
	f := &counter.Frame{Index: s.next, Width: lf.W, Height: lf.H}
	s.next++
	return f, nil
}

func (s *logSource) Close() error { return nil }

type logDetector struct {
	log *Log
}

func (d *logDetector) Detect(_ context.Context, f *counter.Frame) ([]counter.Detection, error) {
	lf := d.log.frames[f.Index%len(d.log.frames)]
	dets := make([]counter.Detection, 0, len(lf.Boxes))
	for _, b := range lf.Boxes {
		dets = append(dets, counter.Detection{
			Rect:       track.Rect{X: b.X, Y: b.Y, W: b.W, H: b.H},
			Confidence: b.Conf,
			Label:      b.Label,
		})
	}
	return dets, nil
}

// OpenStream satisfies pool.OpenStreamFunc: the task's Source field is a
// replay log path. Camera tasks loop the log to emulate an endless feed;
// video tasks play it once.
func OpenStream(_ context.Context, t *pool.Task) (counter.Source, counter.Detector, error) {
	l, err := Load(t.Source)
	if err != nil {
		return nil, nil, err
	}
	return l.Source(t.Kind == pool.KindCamera), l.Detector(), nil
}
