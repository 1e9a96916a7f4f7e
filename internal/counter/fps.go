package counter

import (
	"time"

	"github.com/banshee-data/footfall.report/internal/timeutil"
)

// fpsMeter measures processing throughput both over the whole run and over
// the window since the last Lap call, which feeds periodic result records.
type fpsMeter struct {
	clock timeutil.Clock

	start     time.Time
	frames    int
	lapStart  time.Time
	lapFrames int
}

func newFPSMeter(clock timeutil.Clock) *fpsMeter {
	now := clock.Now()
	return &fpsMeter{clock: clock, start: now, lapStart: now}
}

func (m *fpsMeter) Tick() {
	m.frames++
	m.lapFrames++
}

// Lap returns the frames-per-second over the window since the previous Lap
// (or since start) and resets the window.
func (m *fpsMeter) Lap() float64 {
	now := m.clock.Now()
	elapsed := now.Sub(m.lapStart).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(m.lapFrames) / elapsed
	}
	m.lapStart = now
	m.lapFrames = 0
	return fps
}

// Overall returns the frames-per-second across the full run.
func (m *fpsMeter) Overall() float64 {
	elapsed := m.clock.Since(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.frames) / elapsed
}
