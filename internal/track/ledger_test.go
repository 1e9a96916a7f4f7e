package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerObserve(t *testing.T) {
	t.Parallel()

	t.Run("first sighting creates the object", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()

		obj, direction, first := l.Observe(7, Point{X: 10, Y: 20})

		require.True(t, first)
		assert.Zero(t, direction)
		assert.Equal(t, 7, obj.ID)
		assert.Equal(t, []Point{{X: 10, Y: 20}}, obj.Centroids)
		assert.False(t, obj.Counted)
	})

	t.Run("direction is delta against mean of prior Ys", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Observe(0, Point{X: 100, Y: 300})
		l.Observe(0, Point{X: 100, Y: 290})
		l.Observe(0, Point{X: 100, Y: 260})

		_, direction, first := l.Observe(0, Point{X: 100, Y: 240})

		require.False(t, first)
		// 240 - mean(300, 290, 260) = 240 - 283.33 = -43.33
		assert.InDelta(t, -43.33, direction, 0.01)
	})

	t.Run("trajectory accumulates in order", func(t *testing.T) {
		t.Parallel()
		l := NewLedger()
		l.Observe(3, Point{Y: 1})
		l.Observe(3, Point{Y: 2})
		obj, _, _ := l.Observe(3, Point{Y: 3})

		require.Len(t, obj.Centroids, 3)
		assert.Equal(t, 3.0, obj.Centroids[2].Y)
	})
}

func TestMarkCountedIsOneWay(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	obj, _, _ := l.Observe(0, Point{Y: 100})
	obj.MarkCounted()

	again, _, _ := l.Observe(0, Point{Y: 110})
	assert.True(t, again.Counted)
	assert.Same(t, obj, again)
}

func TestLedgerLookup(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	assert.Nil(t, l.Lookup(1))

	l.Observe(1, Point{})
	assert.NotNil(t, l.Lookup(1))
	assert.Equal(t, 1, l.Len())
}
