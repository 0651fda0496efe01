package search

import (
	"context"
	"runtime"

	"github.com/crazybeth/crazybeth/game"
)

// pathStep records one descended edge for backup, per spec.md section
// 4.5's "alternate sign of v at every edge" requirement.
type pathStep struct {
	node *Node
	idx  int
}

// Worker repeatedly performs select -> expand -> evaluate -> backup,
// sharing the tree with its peers (spec.md section 4.5). Workers never
// own tree state; they only hold a reference to the root and the
// components the coordinator wires up.
type Worker struct {
	id      int
	tt      *Transposition
	opts    Options
	predict PredictFn
	enc     game.Encoder
	stop    <-chan struct{}
}

// NewWorker builds a worker bound to the shared tree and predictor.
func NewWorker(id int, tt *Transposition, opts Options, predict PredictFn, stop <-chan struct{}) *Worker {
	return &Worker{id: id, tt: tt, opts: opts, predict: predict, stop: stop}
}

// Run drives playouts against root starting from pos until stop fires.
// It returns the number of completed trajectories. If a trajectory
// aborts on a predictor error (as opposed to a cooperative stop), onErr
// is called with that error and the worker exits immediately, per
// spec.md section 7's "worker aborts current trajectory, coordinator
// sets stop flag" rule.
func (w *Worker) Run(ctx context.Context, pos game.Position, root *Node, onErr func(error)) int {
	completed := 0
	for {
		select {
		case <-w.stop:
			return completed
		default:
		}
		ok, err := w.playout(ctx, pos, root)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return completed
		}
		if ok {
			completed++
		}
	}
}

// playout runs one selection -> expansion -> evaluation -> backup
// trajectory from root. It returns (false, nil) if the trajectory was
// aborted by a cooperative stop mid-descent, or (false, err) if it was
// aborted by a predictor failure (spec.md section 7).
func (w *Worker) playout(ctx context.Context, rootPos game.Position, root *Node) (bool, error) {
	pos := rootPos.Clone()
	node := root
	var path []pathStep
	depth := 0

	for {
		select {
		case <-w.stop:
			return false, nil
		default:
		}

		if node.IsTerminal() {
			w.backup(path, node.TerminalValue())
			return true, nil
		}

		if !node.HasNNResults() {
			node.WaitForExpansion(w.stop)
			select {
			case <-w.stop:
				return false, nil
			default:
			}
			continue
		}

		depth++
		if depth > w.opts.MaxSearchDepth {
			w.backup(path, 0)
			return true, nil
		}

		qInit := -node.Value()
		idx := node.SelectChild(w.opts.PUCTConfig(qInit))
		path = append(path, pathStep{node: node, idx: idx})
		mv := node.LegalMoves()[idx]

		existing, won := node.ClaimChild(idx)
		if won {
			nextPos := pos.ApplyMove(mv)
			child := w.materialize(nextPos)

			if shared, ok := w.tt.Get(child.PosKey()); ok && shared != child {
				// a transposition: reuse the existing shared node and
				// discard the one just allocated instead of expanding
				// it again (spec.md section 4.3).
				node.SetChild(idx, shared)
				w.backup(path, terminalOrValue(shared))
				return true, nil
			}

			ok, err := w.evaluate(ctx, nextPos, child)
			if !ok {
				// predictor failure mid-trajectory: release the claim so
				// a later trajectory can retry, abort without backup,
				// per spec.md section 7.
				node.ReleaseClaim(idx)
				w.unwindVirtualLoss(path)
				return false, err
			}
			node.SetChild(idx, child)
			w.tt.Put(child.PosKey(), child)
			w.backup(path, terminalOrValue(child))
			return true, nil
		}

		if existing == nil {
			// a peer is mid-claim. This attempt isn't going anywhere:
			// undo the virtual loss SelectChild just added and drop the
			// path entry, yield the processor, then re-run selection at
			// this same node.
			path = path[:len(path)-1]
			node.removeVirtualLoss(idx)
			runtime.Gosched()
			select {
			case <-w.stop:
				return false, nil
			default:
			}
			continue
		}

		pos = pos.ApplyMove(mv)
		node = existing
	}
}

func terminalOrValue(n *Node) float32 {
	if n.IsTerminal() {
		return n.TerminalValue()
	}
	return n.Value()
}

// materialize builds (but does not register) the child node for pos,
// marking it terminal immediately if the position has ended so selection
// never blocks on it.
func (w *Worker) materialize(pos game.Position) *Node {
	key := pos.HashKey()
	legalMoves := pos.LegalMoves()
	child := NewNode(key, legalMoves)
	if terminal, v := pos.IsTerminalAndValue(); terminal {
		child.MarkTerminal(v)
	}
	return child
}

// evaluate requests a prediction for a freshly materialized non-terminal
// child and expands it. It returns false (without expanding) on
// predictor failure, per spec.md section 7's predictor_inference_failed
// handling.
func (w *Worker) evaluate(ctx context.Context, pos game.Position, child *Node) (bool, error) {
	if child.IsTerminal() {
		return true, nil
	}
	value, prior, err := w.predict(ctx, pos, child.LegalMoves())
	if err != nil {
		return false, err
	}
	child.Expand(value, prior)
	return true, nil
}

// backup implements spec.md section 4.5: from the leaf upwards,
// alternate the sign of v at every edge.
func (w *Worker) backup(path []pathStep, leafValue float32) {
	v := leafValue
	for i := len(path) - 1; i >= 0; i-- {
		step := path[i]
		if step.idx >= 0 {
			step.node.Backup(step.idx, v)
		}
		v = -v
	}
}

// unwindVirtualLoss repairs virtual loss along an aborted trajectory
// without touching visits/q, since no value was produced to back up.
func (w *Worker) unwindVirtualLoss(path []pathStep) {
	for _, step := range path {
		if step.idx >= 0 {
			step.node.removeVirtualLoss(step.idx)
		}
	}
}
