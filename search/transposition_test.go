package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranspositionGetPutWhenEnabled(t *testing.T) {
	tt := NewTransposition(true)
	n := NewNode(42, nil)
	tt.Put(42, n)

	got, ok := tt.Get(42)
	require.True(t, ok)
	require.Same(t, n, got)
	require.Equal(t, 1, tt.Len())
}

func TestTranspositionDisabledIsNoOp(t *testing.T) {
	tt := NewTransposition(false)
	n := NewNode(42, nil)
	tt.Put(42, n)

	_, ok := tt.Get(42)
	require.False(t, ok)
	require.Equal(t, 0, tt.Len())
}

func TestTranspositionDeleteAndClear(t *testing.T) {
	tt := NewTransposition(true)
	tt.Put(1, NewNode(1, nil))
	tt.Put(2, NewNode(2, nil))
	require.Equal(t, 2, tt.Len())

	tt.Delete(1)
	require.Equal(t, 1, tt.Len())

	tt.Clear()
	require.Equal(t, 0, tt.Len())
}

func TestTranspositionShardsDistributeAcrossKeys(t *testing.T) {
	tt := NewTransposition(true)
	for i := uint64(0); i < uint64(numShards)*4; i++ {
		tt.Put(i, NewNode(i, nil))
	}
	require.Equal(t, numShards*4, tt.Len())
	for _, s := range tt.shards {
		require.Len(t, s.m, 4)
	}
}
