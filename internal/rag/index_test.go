package rag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlatL2OrdersByDistanceThenID(t *testing.T) {
	ix := NewFlatL2(0)
	require.NoError(t, ix.Add(
		[]float32{0, 0},
		[]float32{3, 4},
		[]float32{1, 0},
		[]float32{0, 1},
	))
	require.Equal(t, 2, ix.Dim())

	hits, err := ix.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, []Hit{{ID: 0, Distance: 0}, {ID: 2, Distance: 1}, {ID: 3, Distance: 1}}, hits)

	all, err := ix.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, float32(25), all[3].Distance)
}

func TestFlatL2DimensionChecks(t *testing.T) {
	ix := NewFlatL2(3)
	require.Error(t, ix.Add([]float32{1, 2}))
	require.Zero(t, ix.Len())
	require.NoError(t, ix.Add([]float32{1, 2, 3}))
	_, err := ix.Search([]float32{1}, 1)
	require.Error(t, err)

	hits, err := NewFlatL2(0).Search([]float32{1}, 1)
	require.NoError(t, err)
	require.Empty(t, hits)
}
