package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueue(t *testing.T) {
	q := NewRingQueue[int](3)
	require.True(t, q.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue(4), ErrQueueFull)

	v, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, q.Enqueue(4))

	var seen []int
	q.Each(func(v int) { seen = append(seen, v) })
	assert.Equal(t, []int{2, 3, 4}, seen)

	for range 3 {
		_, err = q.Dequeue()
		require.NoError(t, err)
	}
	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingPeriod(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		items := make([]int, n)
		for i := range items {
			items[i] = i * 10
		}
		r := NewRing(items)
		start := r.Index()
		var order []int
		for range n {
			order = append(order, r.Advance())
		}
		assert.Equal(t, start, r.Index(), "depth %d", n)
		assert.Equal(t, items[0], order[n-1])
		if n > 1 {
			assert.Equal(t, items[1], order[0])
		}
	}
}

func TestArenaHandles(t *testing.T) {
	a := NewArena[string]()
	h1, err := a.Insert("grass", "g")
	require.NoError(t, err)
	h2, err := a.Insert("stone", "s")
	require.NoError(t, err)
	assert.Equal(t, 0, h1.Index())
	assert.Equal(t, 1, h2.Index())

	_, err = a.Insert("grass", "dup")
	assert.Error(t, err)

	assert.Equal(t, 2, a.Len())
	_, err = a.Get(Handle{})
	assert.ErrorIs(t, err, ErrStaleHandle)

	a.Clear()
	assert.Equal(t, 0, a.Len())
	_, err = a.Get(h1)
	assert.ErrorIs(t, err, ErrStaleHandle)

	// cleared names can be registered again; the index comes back with a new generation
	h3, err := a.Insert("grass", "g2")
	require.NoError(t, err)
	assert.Equal(t, h1.Index(), h3.Index())
	assert.NotEqual(t, h1, h3)
	v, err := a.Get(h3)
	require.NoError(t, err)
	assert.Equal(t, "g2", v)
}
