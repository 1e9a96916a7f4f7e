package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall.report/internal/config"
	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/db"
	"github.com/banshee-data/footfall.report/internal/metrics"
	"github.com/banshee-data/footfall.report/internal/pool"
	"github.com/banshee-data/footfall.report/internal/replay"
	"github.com/banshee-data/footfall.report/internal/results"
)

// writeWalkDownLog writes a replay log of one person walking from the top
// of a 500px frame down past the midline, which counts as one IN.
func writeWalkDownLog(t *testing.T, dir, name string) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 12; i++ {
		cy := 100 + i*30
		fmt.Fprintf(&b, `{"w":500,"h":500,"boxes":[{"x":85,"y":%d,"w":30,"h":80,"conf":0.9,"label":"person"}]}`+"\n", cy-40)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// writeEmptyLog writes a replay log with no detections at all.
func writeEmptyLog(t *testing.T, dir, name string) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString(`{"w":500,"h":500,"boxes":[]}` + "\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.EmptyConfig()
	cfg.WorkerCount = ptrInt(2)
	cfg.SkipFrames = ptrInt(1)
	cfg.PollTimeout = ptrString("20ms")
	cfg.OutputDir = ptrString(filepath.Join(dir, "output"))
	require.NoError(t, cfg.Validate())
	return cfg
}

func waitAllTerminal(t *testing.T, o *Orchestrator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		done := 0
		for _, task := range o.Tasks() {
			if task.Status == pool.TaskCompleted || task.Status == pool.TaskError {
				done++
			}
		}
		return done == n
	}, 5*time.Second, 10*time.Millisecond)
}

// ---------------------------------------------------------------------------
// End-to-end runs
// ---------------------------------------------------------------------------

func TestRunConfiguredTasks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	walkLog := writeWalkDownLog(t, dir, "entrance.jsonl")
	emptyLog := writeEmptyLog(t, dir, "hallway.jsonl")

	cfg := testConfig(t, dir)
	cfg.Videos = []config.StreamEntry{
		{ID: "entrance", Source: walkLog, Priority: ptrInt(5)},
		{ID: "hallway", Source: emptyLog},
		{ID: "dark", Source: filepath.Join(dir, "unused.jsonl"), Enabled: ptrBool(false)},
	}

	o := New(counter.NullDetector{}, cfg, replay.OpenStream)
	added, err := o.AddConfiguredTasks()
	require.NoError(t, err)
	assert.Equal(t, []string{"video_entrance", "video_hallway"}, added)

	// Configured priority overrides the kind default.
	for _, task := range o.Tasks() {
		switch task.ID {
		case "video_entrance":
			assert.Equal(t, 5, task.Priority)
		case "video_hallway":
			assert.Equal(t, pool.VideoPriority, task.Priority)
		}
	}

	require.NoError(t, o.Start(context.Background()))
	waitAllTerminal(t, o, 2)
	require.NoError(t, o.Stop())

	s := o.GetSummary()
	assert.Equal(t, 2, s.TotalTasks)
	assert.Equal(t, 1, s.Overall.TotalIn)
	assert.Equal(t, 0, s.Overall.TotalOut)
	assert.Equal(t, 1, s.Overall.NetCount)
	assert.Equal(t, results.StatusCompleted, s.Tasks["video_entrance"].Status)
	assert.Equal(t, 12, o.Results().Latest()["video_entrance"].FrameCount)
}

func TestAddConfiguredTasksKeepsGoingPastFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	goodLog := writeEmptyLog(t, dir, "good.jsonl")

	cfg := testConfig(t, dir)
	cfg.Videos = []config.StreamEntry{
		{ID: "a", Source: goodLog},
		{ID: "b", Source: goodLog}, // duplicate source, rejected
	}

	o := New(counter.NullDetector{}, cfg, replay.OpenStream)
	added, err := o.AddConfiguredTasks()
	require.Error(t, err)
	assert.ErrorIs(t, err, pool.ErrDuplicateSource)
	assert.Equal(t, []string{"video_a"}, added)
}

func TestAddTaskIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(t, dir)
	o := New(counter.NullDetector{}, cfg, replay.OpenStream)

	id, err := o.AddVideoTask("entrance", "a.jsonl", "Entrance", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "video_entrance", id)

	// Empty IDs get a generated suffix.
	id, err = o.AddCameraTask("", "device:0", "", 0, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "camera_"))
	assert.Len(t, id, len("camera_")+8)

	// Defaults flow into the task's threshold and priority.
	for _, task := range o.Tasks() {
		switch task.ID {
		case "video_entrance":
			assert.Equal(t, cfg.GetVideoAlertThreshold(), task.Threshold)
			assert.Equal(t, pool.VideoPriority, task.Priority)
		default:
			assert.Equal(t, pool.CameraPriority, task.Priority)
		}
	}
}

// wedgedSource ignores cancellation until release is closed.
type wedgedSource struct{ release chan struct{} }

func (s *wedgedSource) Next(ctx context.Context) (*counter.Frame, error) {
	<-s.release
	return nil, context.Canceled
}

func (s *wedgedSource) Close() error { return nil }

func TestStopSurfacesStragglerTasks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.JoinTimeout = ptrString("20ms")

	release := make(chan struct{})
	open := func(context.Context, *pool.Task) (counter.Source, counter.Detector, error) {
		return &wedgedSource{release: release}, nil, nil
	}
	o := New(counter.NullDetector{}, cfg, open)

	id, err := o.AddCameraTask("wedged", "device:0", "", 0, 0)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool {
		tasks := o.Tasks()
		return len(tasks) == 1 && tasks[0].Status == pool.TaskRunning
	}, 5*time.Second, 5*time.Millisecond)

	// Stop returns after the join timeout with the wedged task resolved to
	// an error instead of left running with no record of what happened.
	err = o.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), id)

	tasks := o.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, pool.TaskError, tasks[0].Status)
	assert.Equal(t, pool.StragglerError, tasks[0].Err)

	// When the stream finally unwedges, the worker's terminal record still
	// reaches the aggregator and reports the error.
	close(release)
	require.Eventually(t, func() bool {
		r, ok := o.Results().LatestFor(id)
		return ok && r.Status == results.StatusError && r.Error == pool.StragglerError
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, pool.TaskError, o.Tasks()[0].Status)
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	o := New(counter.NullDetector{}, testConfig(t, dir), replay.OpenStream)
	require.NoError(t, o.Start(context.Background()))
	assert.Error(t, o.Start(context.Background()))
	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop())
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

func TestExportResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	walkLog := writeWalkDownLog(t, dir, "entrance.jsonl")

	cfg := testConfig(t, dir)
	cfg.Videos = []config.StreamEntry{{ID: "entrance", Source: walkLog}}

	o := New(counter.NullDetector{}, cfg, replay.OpenStream)
	_, err := o.AddConfiguredTasks()
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	waitAllTerminal(t, o, 1)
	require.NoError(t, o.Stop())

	t.Run("json", func(t *testing.T) {
		paths, err := o.ExportResults("json")
		require.NoError(t, err)
		require.Len(t, paths, 1)
		data, err := os.ReadFile(paths[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), `"detailed_results"`)
		assert.Contains(t, string(data), "video_entrance")
	})

	t.Run("csv", func(t *testing.T) {
		paths, err := o.ExportResults("csv")
		require.NoError(t, err)
		require.Len(t, paths, 1)
		assert.Contains(t, paths[0], "video_entrance")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := o.ExportResults("tsv")
		assert.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// Mirrors
// ---------------------------------------------------------------------------

func TestMetricsMirror(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	walkLog := writeWalkDownLog(t, dir, "entrance.jsonl")

	cfg := testConfig(t, dir)
	cfg.Videos = []config.StreamEntry{{ID: "entrance", Source: walkLog}}

	m := metrics.New()
	o := New(counter.NullDetector{}, cfg, replay.OpenStream, WithMetrics(m))
	_, err := o.AddConfiguredTasks()
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	waitAllTerminal(t, o, 1)
	require.NoError(t, o.Stop())

	assert.Greater(t, testutil.ToFloat64(m.RecordsCollected), 0.0)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.FramesProcessed.WithLabelValues("video_entrance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CountEvents.WithLabelValues("video_entrance", "in")))
}

func TestStoreMirror(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	walkLog := writeWalkDownLog(t, dir, "entrance.jsonl")

	store, err := db.NewDB(filepath.Join(dir, "footfall.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.MigrateUp(migrationsDir(t)))

	cfg := testConfig(t, dir)
	cfg.Videos = []config.StreamEntry{{ID: "entrance", Source: walkLog}}

	o := New(counter.NullDetector{}, cfg, replay.OpenStream, WithStore(store))
	_, err = o.AddConfiguredTasks()
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	waitAllTerminal(t, o, 1)
	require.NoError(t, o.Stop())

	ids, err := store.TaskIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"video_entrance"}, ids)

	recs, err := store.RecordsForTask("video_entrance")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	last := recs[len(recs)-1]
	assert.Equal(t, results.StatusCompleted, last.Status)
	assert.Equal(t, 1, last.TotalIn)
}

// migrationsDir locates the repository migrations directory from the test
// working directory.
func migrationsDir(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"../../migrations", "../migrations", "migrations"} {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if entries, err := filepath.Glob(filepath.Join(abs, "*.up.sql")); err == nil && len(entries) > 0 {
			return abs
		}
	}
	t.Fatal("cannot find migrations directory")
	return ""
}
