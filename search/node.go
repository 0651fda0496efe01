// Package search implements the concurrent MCTS search core: the tree
// node and its statistics, the transposition table, the root manager,
// search workers, the search coordinator, the time manager and the
// move-selection policy (spec.md sections 3 and 4).
package search

import (
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/crazybeth/crazybeth/game"
)

// claimed is a reserved sentinel a worker CAS's a child slot to while it
// materializes the real node, implementing spec.md section 4.5's
// claim-before-create edge protocol.
var claimed = &Node{}

// Node holds per-node statistics for a reached position (spec.md
// section 3). All fields past construction are safe for concurrent
// access through the exported methods only.
type Node struct {
	mu sync.Mutex

	posKey     uint64
	legalMoves []game.Move

	prior       []float32
	visits      []uint64
	q           []float32
	virtualLoss []int32 // accessed only via atomic ops
	children    []atomic.Pointer[Node]

	totalVisits uint64

	value float32

	isTerminal    bool
	terminalValue float32

	hasNNResults atomic.Bool
	waiters      chan struct{} // closed once, on Expand, to release parked selectors

	isRoot bool
}

// NewNode allocates a node for posKey with the given legal moves. The
// node is not usable for selection until Expand (or MarkTerminal) is
// called; hasNNResults stays false until then.
func NewNode(posKey uint64, legalMoves []game.Move) *Node {
	n := &Node{
		posKey:     posKey,
		legalMoves: legalMoves,
		prior:      make([]float32, len(legalMoves)),
		visits:     make([]uint64, len(legalMoves)),
		q:          make([]float32, len(legalMoves)),
		virtualLoss: make([]int32, len(legalMoves)),
		children:    make([]atomic.Pointer[Node], len(legalMoves)),
		waiters:     make(chan struct{}),
	}
	return n
}

// PosKey returns the position identity this node represents.
func (n *Node) PosKey() uint64 { return n.posKey }

// LegalMoves returns the fixed child-move order.
func (n *Node) LegalMoves() []game.Move { return n.legalMoves }

// NumChildren is nb_children in spec.md's data model.
func (n *Node) NumChildren() int { return len(n.legalMoves) }

// HasNNResults reports whether Expand (or MarkTerminal) has completed.
// Reads with acquire semantics per spec.md section 5.
func (n *Node) HasNNResults() bool { return n.hasNNResults.Load() }

func (n *Node) IsTerminal() bool { return n.isTerminal }

func (n *Node) TerminalValue() float32 { return n.terminalValue }

func (n *Node) IsRoot() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isRoot
}

func (n *Node) SetRoot(v bool) {
	n.mu.Lock()
	n.isRoot = v
	n.mu.Unlock()
}

// Value returns the node's own evaluation, valid once HasNNResults.
func (n *Node) Value() float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// TotalVisits is 1 + sum(visits) once expanded, per spec.md's invariant.
func (n *Node) TotalVisits() uint64 {
	return atomic.LoadUint64(&n.totalVisits)
}

// Visits returns visits[i].
func (n *Node) Visits(i int) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visits[i]
}

// Q returns q[i].
func (n *Node) Q(i int) float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.q[i]
}

// Prior returns prior[i].
func (n *Node) Prior(i int) float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prior[i]
}

// MarkTerminal sets the node as a terminal position and publishes
// hasNNResults so selection never blocks on a terminal node.
func (n *Node) MarkTerminal(value float32) {
	n.mu.Lock()
	n.isTerminal = true
	n.terminalValue = value
	n.totalVisits = 1
	n.mu.Unlock()
	n.publish()
}

// Expand implements spec.md section 4.2's expand operation: it is a
// precondition violation to call this twice (has_nn_results must be
// false), and on return has_nn_results is true with release ordering so
// concurrent selectors reading it with acquire see a fully-built node.
func (n *Node) Expand(value float32, prior []float32) {
	if n.hasNNResults.Load() {
		panic("search: Expand called on an already-expanded node")
	}
	prior = normalizePrior(prior)

	n.mu.Lock()
	n.value = value
	copy(n.prior, prior)
	n.totalVisits = 1
	n.mu.Unlock()

	n.publish()
}

func (n *Node) publish() {
	n.hasNNResults.Store(true)
	close(n.waiters)
}

// WaitForExpansion parks the calling goroutine until Expand/MarkTerminal
// completes or stop fires, per spec.md section 4.5 ("park ... bounded
// spin with exponential backoff ... then block"). Because Go channels
// already provide an efficient parked wait, the channel close is used
// directly as the wake signal rather than hand-rolling a spin loop.
func (n *Node) WaitForExpansion(stop <-chan struct{}) {
	select {
	case <-n.waiters:
	case <-stop:
	}
}

// ClaimChild attempts to claim child slot i for expansion. It returns
// (nil, true) if this caller won the claim and must materialize the
// child, or (existing, false) if a child already exists or another
// worker holds the claim.
func (n *Node) ClaimChild(i int) (existing *Node, won bool) {
	if n.children[i].CompareAndSwap(nil, claimed) {
		return nil, true
	}
	got := n.children[i].Load()
	if got == claimed {
		return nil, false
	}
	return got, false
}

// SetChild installs the materialized child for slot i, replacing the
// claimed sentinel.
func (n *Node) SetChild(i int, child *Node) {
	n.children[i].Store(child)
}

// Child returns the current child of slot i, or nil if the slot is
// unclaimed or a peer is still materializing it (the claimed sentinel is
// never returned).
func (n *Node) Child(i int) *Node {
	c := n.children[i].Load()
	if c == claimed {
		return nil
	}
	return c
}

// IsClaimed reports whether slot i is reserved but not yet materialized.
func (n *Node) IsClaimed(i int) bool { return n.children[i].Load() == claimed }

// ReleaseClaim reverts slot i from claimed back to unclaimed, used when
// a worker that won the claim fails to materialize the child (e.g. a
// predictor failure) so a later trajectory can retry the edge.
func (n *Node) ReleaseClaim(i int) {
	n.children[i].CompareAndSwap(claimed, nil)
}

// AddVirtualLoss atomically increments virtual_loss[i].
func (n *Node) AddVirtualLoss(i int) {
	atomic.AddInt32(&n.virtualLoss[i], 1)
}

func (n *Node) removeVirtualLoss(i int) {
	atomic.AddInt32(&n.virtualLoss[i], -1)
}

// VirtualLoss returns virtual_loss[i].
func (n *Node) VirtualLoss(i int) int32 {
	return atomic.LoadInt32(&n.virtualLoss[i])
}

// SumVirtualLoss sums virtual_loss across all children, used by tests to
// assert the quiescence invariant of spec.md section 8.
func (n *Node) SumVirtualLoss() int32 {
	var sum int32
	for i := range n.virtualLoss {
		sum += atomic.LoadInt32(&n.virtualLoss[i])
	}
	return sum
}

// PUCTConfig parametrizes SelectChild per spec.md section 4.2.
type PUCTConfig struct {
	CPuctInit         float32
	CPuctBase         float32
	UInit             float32
	UMin              float32
	UBase             float32
	VirtualLossPenalty float32
	// QInit is the Q estimate used for an unvisited child, normally the
	// parent's negated current value (spec.md section 4.5's "Q
	// initialization"/first-play-urgency rule).
	QInit float32
}

// SelectChild implements spec.md section 4.2's PUCT selection with the
// time-varying exploration factor, and atomically adds virtual loss to
// the winning edge before returning it.
func (n *Node) SelectChild(cfg PUCTConfig) int {
	n.mu.Lock()
	totalVisits := n.totalVisits
	n.mu.Unlock()

	var totalVisitsInclVL uint64 = totalVisits
	for i := range n.virtualLoss {
		totalVisitsInclVL += uint64(n.VirtualLoss(i))
	}

	cpuctEffective := math32.Log((float32(totalVisits)+cfg.CPuctBase+1)/cfg.CPuctBase) + cfg.CPuctInit
	uFactor := cfg.UInit / (1 + float32(totalVisits)/cfg.UBase)
	if uFactor < cfg.UMin {
		uFactor = cfg.UMin
	}

	numerator := math32.Sqrt(float32(totalVisitsInclVL))

	best := 0
	bestScore := math32.Inf(-1)
	for i := range n.legalMoves {
		n.mu.Lock()
		visits := n.visits[i]
		q := n.q[i]
		prior := n.prior[i]
		n.mu.Unlock()

		vl := n.VirtualLoss(i)
		qHat := cfg.QInit
		if visits > 0 {
			qHat = q
		}
		qHat -= cfg.VirtualLossPenalty * float32(vl)

		denom := 1 + float32(visits) + float32(vl)
		u := cpuctEffective * prior * (numerator / denom)
		score := qHat + uFactor*u

		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	n.AddVirtualLoss(best)
	return best
}

// Backup implements spec.md section 4.2's backup operation: virtual loss
// is repaired first, then visits[i]/q[i]/total_visits update together
// under the node's lock so the pair is atomic.
func (n *Node) Backup(i int, v float32) {
	n.removeVirtualLoss(i)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.q[i] = (n.q[i]*float32(n.visits[i]) + v) / float32(n.visits[i]+1)
	if n.q[i] > 1 {
		n.q[i] = 1
	} else if n.q[i] < -1 {
		n.q[i] = -1
	}
	n.visits[i]++
	n.totalVisits++
}

// EnhanceMoves implements spec.md section 4.2's root-only prior boost
// for check-giving and/or capture moves, applied once immediately after
// expansion.
func (n *Node) EnhanceMoves(enhanceChecks, enhanceCaptures bool, factor float32) {
	if !enhanceChecks && !enhanceCaptures {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, mv := range n.legalMoves {
		if (enhanceChecks && mv.IsCheck()) || (enhanceCaptures && mv.IsCapture()) {
			n.prior[i] *= 1 + factor
		}
	}
	renormalizeLocked(n.prior)
}

func normalizePrior(prior []float32) []float32 {
	out := make([]float32, len(prior))
	copy(out, prior)
	renormalizeLocked(out)
	return out
}

func renormalizeLocked(prior []float32) {
	var sum float32
	for _, p := range prior {
		sum += p
	}
	if sum <= math32.SmallestNonzeroFloat32 {
		if len(prior) == 0 {
			return
		}
		uniform := 1 / float32(len(prior))
		for i := range prior {
			prior[i] = uniform
		}
		return
	}
	for i := range prior {
		prior[i] /= sum
	}
}

// GetMCTSPolicy implements spec.md section 4.7's policy derivation.
func (n *Node) GetMCTSPolicy(qWeight, qThresh float32) []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	pi := make([]float32, len(n.legalMoves))
	var totalVisits float32
	for _, v := range n.visits {
		totalVisits += float32(v)
	}
	if totalVisits == 0 {
		totalVisits = 1
	}

	if qWeight == 0 {
		for i, v := range n.visits {
			pi[i] = float32(v) / totalVisits
		}
		return pi
	}

	qPlus := make([]float32, len(n.legalMoves))
	var qPlusSum float32
	for i, q := range n.q {
		v := q - qThresh
		if v < 0 {
			v = 0
		}
		qPlus[i] = v
		qPlusSum += v
	}

	for i := range pi {
		visitTerm := (1 - qWeight) * float32(n.visits[i]) / totalVisits
		var qTerm float32
		if qPlusSum > 0 {
			qTerm = qWeight * qPlus[i] / qPlusSum
		}
		pi[i] = visitTerm + qTerm
	}
	renormalizeLocked(pi)
	return pi
}
