package search

import (
	"context"
	"math/rand"

	"github.com/crazybeth/crazybeth/game"
)

// RawNetMove implements spec.md section 9's "Dynamic dispatch of
// 'agent'" raw-network mode: a single forward pass with no tree search.
// It builds a synthetic one-level root whose policy is exactly the
// predictor's prior over legal moves and whose visits are all set to 1
// (so the node invariants of spec.md section 4.2 still hold), then
// reuses section 4.7's move-selection policy unchanged.
func RawNetMove(ctx context.Context, pos game.Position, predict PredictFn, moveCounter int, opts Options, rng *rand.Rand) (EvalInfo, error) {
	legalMoves := pos.LegalMoves()
	if len(legalMoves) == 0 {
		return EvalInfo{}, nil
	}

	value, prior, err := predict(ctx, pos, legalMoves)
	if err != nil {
		return EvalInfo{}, err
	}

	root := NewNode(pos.HashKey(), legalMoves)
	root.Expand(value, prior)

	root.mu.Lock()
	for i := range root.visits {
		root.visits[i] = 1
		root.q[i] = value
	}
	root.totalVisits = uint64(1 + len(legalMoves))
	policy := make([]float32, len(root.prior))
	copy(policy, root.prior)
	root.mu.Unlock()

	bestMove := SelectMove(root, policy, moveCounter, opts.TemperatureMoves, opts.Temperature(), rng)

	return EvalInfo{
		HasMove:       true,
		BestMove:      bestMove,
		PV:            []game.Move{bestMove},
		Policy:        policy,
		CentipawnsCP:  CentipawnFromQ(value, 370, 1.2),
		NodesSearched: 1,
		PVDepth:       1,
	}, nil
}
