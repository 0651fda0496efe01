package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crazybeth/crazybeth/game"
)

func TestGoReturnsImmediatelyWithOneLegalMove(t *testing.T) {
	// Black king h8 is checked along the 8th rank by the white rook on
	// a8; g7 and g8 are unavailable (g7 is adjacent to the white king on
	// f6, g8 stays on the checking rank), leaving Kh7 as the only legal
	// reply.
	pos, err := game.NewFromFEN("R6k/8/5K2/8/8/8/8/8 b - - 0 1", false)
	require.NoError(t, err)
	require.Len(t, pos.LegalMoves(), 1, "fixture must have exactly one legal move")

	coord := NewCoordinator(DefaultOptions(), uniformPredict, game.DefaultEncoder, 1)
	info, err := coord.Go(context.Background(), pos, Limits{MoveTimeMS: 50}, 0, 0, PhaseMiddlegame)
	require.NoError(t, err)
	require.True(t, info.HasMove)
	require.Equal(t, uint64(0), info.NodesSearched)
}

func TestGoReturnsNoMoveOnTerminalRoot(t *testing.T) {
	// Fool's mate: White has been checkmated.
	pos, err := game.NewFromFEN("rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", false)
	require.NoError(t, err)
	terminal, _ := pos.IsTerminalAndValue()
	require.True(t, terminal)

	coord := NewCoordinator(DefaultOptions(), uniformPredict, game.DefaultEncoder, 1)
	info, err := coord.Go(context.Background(), pos, Limits{MoveTimeMS: 50}, 0, 0, PhaseMiddlegame)
	require.NoError(t, err)
	require.False(t, info.HasMove)
}

func TestGoWithSingleThreadConvergesAndClearsVirtualLoss(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 1
	opts.BatchSize = 1

	coord := NewCoordinator(opts, uniformPredict, game.DefaultEncoder, 1)
	pos := game.NewGame()
	info, err := coord.Go(context.Background(), pos, Limits{MoveTimeMS: 100}, 0, 0, PhaseOpening)
	require.NoError(t, err)
	require.True(t, info.HasMove)
	require.Greater(t, info.NodesSearched, uint64(0))

	root := coord.root.Root()
	require.Equal(t, int32(0), root.SumVirtualLoss())
}

func TestGoHonorsLimitsNodesOverUnboundedOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 1
	opts.BatchSize = 1
	opts.Nodes = 0 // unbounded unless overridden by a per-call limit

	coord := NewCoordinator(opts, uniformPredict, game.DefaultEncoder, 1)
	pos := game.NewGame()
	info, err := coord.Go(context.Background(), pos, Limits{MoveTimeMS: 5000, Nodes: 20}, 0, 0, PhaseOpening)
	require.NoError(t, err)
	require.True(t, info.HasMove)
	// watchNodeBudget polls every 5ms, so the stop can land a little past
	// the requested count; it must still cut the 5s movetime budget short.
	require.Less(t, info.ElapsedMS, int64(4000))
}

func TestGoHonorsLimitsDepthOverConfiguredMaxSearchDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.Threads = 1
	opts.BatchSize = 1
	opts.MaxSearchDepth = 99

	coord := NewCoordinator(opts, uniformPredict, game.DefaultEncoder, 1)
	pos := game.NewGame()
	info, err := coord.Go(context.Background(), pos, Limits{MoveTimeMS: 100, Depth: 2}, 0, 0, PhaseOpening)
	require.NoError(t, err)
	require.True(t, info.HasMove)
	require.LessOrEqual(t, info.PVDepth, 2)
}
