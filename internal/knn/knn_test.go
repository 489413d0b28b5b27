package knn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmapper/coembed/internal/math32"
)

func TestInsertAssignsDenseIDs(t *testing.T) {
	idx := New(2)

	for i := 0; i < 5; i++ {
		id, err := idx.Insert([]float32{float32(i), 0})
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}

	assert.Equal(t, 5, idx.Len())
}

func TestInsertDimensionMismatch(t *testing.T) {
	idx := New(3)

	_, err := idx.Insert([]float32{1, 2})
	require.Error(t, err)

	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := New(3)

	_, err := idx.Search([]float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(2)

	got, err := idx.Search([]float32{1, 2}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchFindsExactMatchFirst(t *testing.T) {
	idx := New(2)

	vectors := [][]float32{
		{0, 0},
		{10, 10},
		{0, 10},
		{10, 0},
		{5, 5},
	}
	for _, v := range vectors {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	got, err := idx.Search([]float32{10, 10}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, uint32(1), got[0].ID)
	assert.Equal(t, float32(0), got[0].Distance)
	assert.Equal(t, uint32(4), got[1].ID, "second closest is the center point")
}

func TestSearchResultsAscendingByDistance(t *testing.T) {
	idx := New(4)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}

		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	q := []float32{0.5, 0.5, 0.5, 0.5}

	got, err := idx.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestSearchRecallOnClusteredData(t *testing.T) {
	idx := New(3)
	rng := rand.New(rand.NewSource(11))

	centers := [][]float32{{0, 0, 0}, {100, 100, 100}}
	vectors := make([][]float32, 0, 100)

	for i := 0; i < 100; i++ {
		c := centers[i%2]
		v := make([]float32, 3)
		for j := range v {
			v[j] = c[j] + rng.Float32()
		}

		vectors = append(vectors, v)

		_, err := idx.Insert(v)
		require.NoError(t, err)
	}

	// All neighbors of a cluster-0 member should be cluster-0 members.
	got, err := idx.Search(vectors[0], 10)
	require.NoError(t, err)
	require.Len(t, got, 10)

	for _, nb := range got {
		assert.Equal(t, uint32(0), nb.ID%2, "neighbor from the wrong cluster")
	}
}

func TestDeterministicForFixedSeed(t *testing.T) {
	build := func() []Neighbor {
		idx := New(2, func(o *Options) {
			o.Seed = 42
		})

		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 50; i++ {
			_, err := idx.Insert([]float32{rng.Float32(), rng.Float32()})
			require.NoError(t, err)
		}

		got, err := idx.Search([]float32{0.5, 0.5}, 5)
		require.NoError(t, err)

		return got
	}

	assert.Equal(t, build(), build())
}

func TestCustomDistance(t *testing.T) {
	idx := New(2, func(o *Options) {
		o.Distance = func(a, b []float32) float32 {
			return -math32.Dot(a, b) // Larger dot product means closer
		}
	})

	_, err := idx.Insert([]float32{1, 0})
	require.NoError(t, err)
	_, err = idx.Insert([]float32{0, 1})
	require.NoError(t, err)

	got, err := idx.Search([]float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0), got[0].ID)
}
