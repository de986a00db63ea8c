package rpc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/element-scan/holders-indexer/internal/rpc"
)

func TestSplitRange_SingleChunk(t *testing.T) {
	ranges, err := rpc.SplitRange(100, 150, 100)
	require.NoError(t, err)
	assert.Equal(t, []rpc.BlockRange{{From: 100, To: 150}}, ranges)
}

func TestSplitRange_ExactChunks(t *testing.T) {
	ranges, err := rpc.SplitRange(0, 199, 100)
	require.NoError(t, err)
	assert.Equal(t, []rpc.BlockRange{
		{From: 0, To: 99},
		{From: 100, To: 199},
	}, ranges)
}

func TestSplitRange_Remainder(t *testing.T) {
	ranges, err := rpc.SplitRange(10, 35, 10)
	require.NoError(t, err)
	assert.Equal(t, []rpc.BlockRange{
		{From: 10, To: 19},
		{From: 20, To: 29},
		{From: 30, To: 35},
	}, ranges)
}

func TestSplitRange_SingleBlock(t *testing.T) {
	ranges, err := rpc.SplitRange(42, 42, 1000)
	require.NoError(t, err)
	assert.Equal(t, []rpc.BlockRange{{From: 42, To: 42}}, ranges)
}

func TestSplitRange_InvalidRange(t *testing.T) {
	_, err := rpc.SplitRange(100, 50, 10)
	assert.Error(t, err)
}

func TestSplitRange_ZeroChunkSize(t *testing.T) {
	_, err := rpc.SplitRange(0, 10, 0)
	assert.Error(t, err)
}
