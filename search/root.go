package search

import (
	"context"
	"math/rand"
	"time"

	"github.com/crazybeth/crazybeth/game"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
)

// PredictFn evaluates a position once, synchronously, returning a value
// and a prior aligned with pos.LegalMoves(). The root manager and
// workers both receive this closure from the coordinator so neither
// package depends on the predictor package's batching internals
// directly.
type PredictFn func(ctx context.Context, pos game.Position, legalMoves []game.Move) (value float32, prior []float32, err error)

// RootManager implements spec.md section 4.4: it selects or creates the
// root for the current move, keeps the two most recent anchors alive for
// tree reuse, and injects root-only prior shaping.
type RootManager struct {
	tt   *Transposition
	opts Options
	rng  *rand.Rand

	root *Node
	// anchors holds, in match priority order, the own-move-next and
	// opponent-move-next subtrees saved by ApplyMoveToTree.
	anchors [2]*Node
}

// NewRootManager constructs a root manager bound to tt. seed, if
// non-zero, seeds the coordinator-owned RNG deterministically (spec.md
// section 9's "Global RNG state"); zero seeds from the clock.
func NewRootManager(tt *Transposition, opts Options, seed int64) *RootManager {
	src := seed
	if src == 0 {
		src = time.Now().UnixNano()
	}
	return &RootManager{
		tt:   tt,
		opts: opts,
		rng:  rand.New(rand.NewSource(src)),
	}
}

// Prepare implements spec.md section 4.4 steps 1-5.
func (rm *RootManager) Prepare(ctx context.Context, pos game.Position, predict PredictFn) (root *Node, nodesPreSearch uint64, err error) {
	key := pos.HashKey()

	if rm.root != nil && rm.root.PosKey() == key {
		root = rm.root
		nodesPreSearch = root.TotalVisits()
	} else if rm.anchors[0] != nil && rm.anchors[0].PosKey() == key {
		root = rm.anchors[0]
		nodesPreSearch = root.TotalVisits()
	} else if rm.anchors[1] != nil && rm.anchors[1].PosKey() == key {
		root = rm.anchors[1]
		nodesPreSearch = root.TotalVisits()
	}

	if root == nil {
		legalMoves := pos.LegalMoves()
		fresh := NewNode(key, legalMoves)
		if terminal, v := pos.IsTerminalAndValue(); terminal {
			fresh.MarkTerminal(v)
		} else {
			value, prior, perr := predict(ctx, pos, legalMoves)
			if perr != nil {
				return nil, 0, perr
			}
			fresh.Expand(value, prior)
		}
		rm.tt.Put(key, fresh)
		root = fresh
		nodesPreSearch = 0
	}

	root.SetRoot(true)
	rm.root = root

	if root.NumChildren() >= 2 {
		if rm.opts.EnhanceChecks || rm.opts.EnhanceCaptures {
			root.EnhanceMoves(rm.opts.EnhanceChecks, rm.opts.EnhanceCaptures, 1.0)
		}
		alpha, epsilon := rm.opts.DirichletParams()
		rm.applyDirichletNoise(root, alpha, epsilon)
	}

	return root, nodesPreSearch, nil
}

// applyDirichletNoise implements spec.md section 4.2's apply_dirichlet,
// grounded on the teacher's mcts/tree.go New(), which wires the same
// gonum distmv.Dirichlet + golang.org/x/exp/rand source.
func (rm *RootManager) applyDirichletNoise(root *Node, alpha, epsilon float64) {
	n := root.NumChildren()
	if n == 0 {
		return
	}
	alphaVec := make([]float64, n)
	for i := range alphaVec {
		alphaVec[i] = alpha
	}
	dist := distmv.NewDirichlet(alphaVec, distrand.NewSource(uint64(rm.rng.Int63())))
	noise := dist.Rand(nil)

	root.mu.Lock()
	for i := range root.prior {
		root.prior[i] = float32((1-epsilon)*float64(root.prior[i]) + epsilon*noise[i])
	}
	renormalizeLocked(root.prior)
	root.mu.Unlock()
}

// ApplyMoveToTree implements spec.md section 4.4's post-move anchor
// update: the subtree reached by mv is saved as the next anchor,
// shifting the own/opponent-next pair forward by one ply. mv is looked
// up among the current root's moves first and, if it is not one of
// them, among the moves of the most recently saved anchor, so an own
// move followed by the opponent's reply descends two plies. ownMove is
// accepted for interface parity with spec.md's signature and is not
// consulted; both own and opponent moves are recorded in the same
// two-slot FIFO so Prepare can match either on the next call.
func (rm *RootManager) ApplyMoveToTree(mv game.Move, ownMove bool) {
	for _, from := range []*Node{rm.root, rm.anchors[1]} {
		if from == nil {
			continue
		}
		for i, m := range from.LegalMoves() {
			if m.UCI() == mv.UCI() {
				rm.anchors[0] = rm.anchors[1]
				rm.anchors[1] = from.Child(i)
				return
			}
		}
	}
}

// ClearGameHistory drops all anchors and empties the transposition
// table.
func (rm *RootManager) ClearGameHistory() {
	rm.root = nil
	rm.anchors[0] = nil
	rm.anchors[1] = nil
	rm.tt.Clear()
}

// Root returns the currently prepared root, or nil.
func (rm *RootManager) Root() *Node { return rm.root }

// SetOptions installs a new option set, consulted by the next Prepare
// call. Per spec.md section 5, root-manager state is mutated only
// between searches, so callers must not invoke this while a search is
// in flight.
func (rm *RootManager) SetOptions(opts Options) { rm.opts = opts }
