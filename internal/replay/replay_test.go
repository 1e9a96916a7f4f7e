package replay

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/pool"
)

const sampleLog = `{"w":500,"h":375,"boxes":[{"x":180,"y":92,"w":34,"h":88,"conf":0.87,"label":"person"}]}
{"w":500,"h":375,"boxes":[]}
{"w":500,"h":375,"boxes":[{"x":182,"y":110,"w":34,"h":88,"conf":0.91,"label":"person"},{"x":40,"y":60,"w":50,"h":40,"conf":0.95,"label":"dog"}]}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("parses frames and boxes", func(t *testing.T) {
		t.Parallel()
		l, err := Parse(strings.NewReader(sampleLog))
		require.NoError(t, err)
		assert.Equal(t, 3, l.Len())
	})

	t.Run("skips blank lines", func(t *testing.T) {
		t.Parallel()
		l, err := Parse(strings.NewReader("\n" + sampleLog + "\n"))
		require.NoError(t, err)
		assert.Equal(t, 3, l.Len())
	})

	t.Run("rejects malformed JSON with the line number", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(strings.NewReader(sampleLog + "{not json}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 4")
	})

	t.Run("rejects bad frame sizes", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(strings.NewReader(`{"w":0,"h":375,"boxes":[]}`))
		assert.Error(t, err)
	})

	t.Run("rejects empty logs", func(t *testing.T) {
		t.Parallel()
		_, err := Parse(strings.NewReader(""))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"))
		assert.Error(t, err)
	})

	t.Run("existing file", func(t *testing.T) {
		t.Parallel()
		l, err := Load(writeLog(t, sampleLog))
		require.NoError(t, err)
		assert.Equal(t, 3, l.Len())
	})
}

// ---------------------------------------------------------------------------
// Source and detector
// ---------------------------------------------------------------------------

func TestSource(t *testing.T) {
	t.Parallel()

	t.Run("plays once then EOF", func(t *testing.T) {
		t.Parallel()
		l, err := Parse(strings.NewReader(sampleLog))
		require.NoError(t, err)

		src := l.Source(false)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			f, err := src.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, i, f.Index)
			assert.Equal(t, 500, f.Width)
			assert.Equal(t, 375, f.Height)
		}
		_, err = src.Next(ctx)
		assert.ErrorIs(t, err, io.EOF)
		require.NoError(t, src.Close())
	})

	t.Run("loops when asked", func(t *testing.T) {
		t.Parallel()
		l, err := Parse(strings.NewReader(sampleLog))
		require.NoError(t, err)

		src := l.Source(true)
		ctx := context.Background()
		for i := 0; i < 7; i++ {
			f, err := src.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, i, f.Index)
		}
	})

	t.Run("honours cancellation", func(t *testing.T) {
		t.Parallel()
		l, err := Parse(strings.NewReader(sampleLog))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = l.Source(true).Next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDetector(t *testing.T) {
	t.Parallel()

	l, err := Parse(strings.NewReader(sampleLog))
	require.NoError(t, err)
	det := l.Detector()
	ctx := context.Background()

	dets, err := det.Detect(ctx, &counter.Frame{Index: 0})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, counter.PersonLabel, dets[0].Label)
	assert.InDelta(t, 0.87, dets[0].Confidence, 1e-9)
	assert.Equal(t, 180.0, dets[0].Rect.X)

	dets, err = det.Detect(ctx, &counter.Frame{Index: 1})
	require.NoError(t, err)
	assert.Empty(t, dets)

	dets, err = det.Detect(ctx, &counter.Frame{Index: 2})
	require.NoError(t, err)
	assert.Len(t, dets, 2)

	// Wraps for looped sources.
	dets, err = det.Detect(ctx, &counter.Frame{Index: 3})
	require.NoError(t, err)
	assert.Len(t, dets, 1)
}

// ---------------------------------------------------------------------------
// Pool integration
// ---------------------------------------------------------------------------

func TestOpenStream(t *testing.T) {
	t.Parallel()

	t.Run("video plays once", func(t *testing.T) {
		t.Parallel()
		path := writeLog(t, sampleLog)
		src, det, err := OpenStream(context.Background(), &pool.Task{ID: "video_a", Kind: pool.KindVideo, Source: path})
		require.NoError(t, err)
		require.NotNil(t, det)

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := src.Next(ctx)
			require.NoError(t, err)
		}
		_, err = src.Next(ctx)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("camera loops", func(t *testing.T) {
		t.Parallel()
		path := writeLog(t, sampleLog)
		src, _, err := OpenStream(context.Background(), &pool.Task{ID: "camera_1", Kind: pool.KindCamera, Source: path})
		require.NoError(t, err)

		ctx := context.Background()
		for i := 0; i < 10; i++ {
			_, err := src.Next(ctx)
			require.NoError(t, err)
		}
	})

	t.Run("missing log is an open error", func(t *testing.T) {
		t.Parallel()
		_, _, err := OpenStream(context.Background(), &pool.Task{ID: "video_a", Kind: pool.KindVideo, Source: "absent.jsonl"})
		assert.Error(t, err)
	})
}
