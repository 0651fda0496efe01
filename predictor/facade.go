// Package predictor adapts a batched neural-network executor (an opaque
// external collaborator per spec.md section 1) to the synchronous
// request shape search workers use: submit one position, block for a
// value and a renormalized probability vector over that position's
// legal moves.
package predictor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/notnil/chess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// renormEpsilon is the epsilon spec.md section 4.1 renormalizes a
// gathered legal-move probability vector against.
const renormEpsilon = 1e-6

// maxCoalesceWait bounds how long the dispatcher waits to fill a batch
// before flushing a partial one, so a lone worker never starves waiting
// for peers that aren't currently submitting.
const maxCoalesceWait = 2 * time.Millisecond

// ErrPredictorClosed is returned by Predict once Close has been called.
var ErrPredictorClosed = errors.New("predictor_closed")

// Batcher is the opaque, already-trained neural network executor. It is
// external to the search core; the core only depends on this contract.
type Batcher interface {
	// PredictBatch evaluates a batch of B encoded positions and returns
	// B values and B policy vectors, each of width PolicyWidth().
	PredictBatch(ctx context.Context, planes *tensor.Dense, batch int) (values []float32, policies [][]float32, err error)
	PolicyWidth() int
	IsPolicyMap() bool
}

// Resolver maps a position's legal moves onto indices into the width-P
// policy vector the executor returns. denseResolver and policyMapResolver
// implement the two modes spec.md section 4.1 describes.
type Resolver interface {
	Indices(legalMoves []string, sideToMove chess.Color) []int
}

type request struct {
	planes     []float32
	legalMoves []string
	sideToMove chess.Color
	result     chan predictResult
}

type predictResult struct {
	value  float32
	policy []float32
	err    error
}

// Facade is the batched predictor exposed to search workers.
type Facade struct {
	exec     Batcher
	resolver Resolver
	width    int
	planeLen int
	batch    atomic.Int32

	submit chan *request
	done   chan struct{}
	once   sync.Once

	warn func(string)
}

// NewDense builds a Facade in dense mode: policy has a fixed label space
// and legal moves are looked up (and mirrored for the non-canonical
// color) via labels.
func NewDense(labels []string, planeLen, batchSize int, exec Batcher) *Facade {
	return newFacade(newDenseResolver(labels), planeLen, batchSize, exec)
}

// NewPolicyMap builds a Facade in policy-map mode: the policy vector is
// already aligned with the board-plane layout, so legal-move indices are
// read directly via indexOf without mirroring.
func NewPolicyMap(indexOf func(move string) int, planeLen, batchSize int, exec Batcher) *Facade {
	return newFacade(&policyMapResolver{indexOf: indexOf}, planeLen, batchSize, exec)
}

func newFacade(r Resolver, planeLen, batchSize int, exec Batcher) *Facade {
	f := &Facade{
		exec:     exec,
		resolver: r,
		width:    exec.PolicyWidth(),
		planeLen: planeLen,
		submit:   make(chan *request, batchSize),
		done:     make(chan struct{}),
		warn:     func(string) {},
	}
	f.batch.Store(int32(batchSize))
	go f.dispatch()
	return f
}

// SetWarnLogger installs a sink for degenerate_policy / nan_in_value
// warnings (spec.md section 7); defaults to a no-op.
func (f *Facade) SetWarnLogger(warn func(string)) { f.warn = warn }

// SetBatchSize updates the target coalescing size the dispatcher reads
// on its next collection loop, letting a UCI setoption Batch_Size take
// effect without rebuilding the facade.
func (f *Facade) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	f.batch.Store(int32(n))
}

// BatchSize returns the dispatcher's current coalescing target.
func (f *Facade) BatchSize() int32 { return f.batch.Load() }

// Predict submits one position for evaluation and blocks until the
// dispatcher's next batch (or this request alone, if coalescing times
// out) produces a result.
func (f *Facade) Predict(ctx context.Context, planes []float32, legalMoves []string, sideToMove chess.Color) (float32, []float32, error) {
	req := &request{
		planes:     planes,
		legalMoves: legalMoves,
		sideToMove: sideToMove,
		result:     make(chan predictResult, 1),
	}
	select {
	case f.submit <- req:
	case <-f.done:
		return 0, nil, ErrPredictorClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.value, res.policy, res.err
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close shuts the dispatcher down; further Predict calls fail with
// ErrPredictorClosed.
func (f *Facade) Close() {
	f.once.Do(func() { close(f.done) })
}

func (f *Facade) dispatch() {
	for {
		var reqs []*request
		select {
		case r := <-f.submit:
			reqs = append(reqs, r)
		case <-f.done:
			return
		}

		timer := time.NewTimer(maxCoalesceWait)
	collect:
		for len(reqs) < int(f.batch.Load()) {
			select {
			case r := <-f.submit:
				reqs = append(reqs, r)
			case <-timer.C:
				break collect
			case <-f.done:
				timer.Stop()
				return
			}
		}
		timer.Stop()

		f.evaluate(reqs)
	}
}

func (f *Facade) evaluate(reqs []*request) {
	ctx := context.Background()
	backing := make([]float32, 0, len(reqs)*f.planeLen)
	for _, r := range reqs {
		backing = append(backing, r.planes...)
	}
	batch := tensor.New(tensor.WithShape(len(reqs), f.planeLen), tensor.WithBacking(backing))

	values, policies, err := f.exec.PredictBatch(ctx, batch, len(reqs))
	if err != nil {
		for _, r := range reqs {
			r.result <- predictResult{err: errors.Wrap(err, "predictor_inference_failed")}
		}
		return
	}

	for i, r := range reqs {
		value := values[i]
		if math32.IsNaN(value) {
			f.warn("nan_in_value")
			value = 0
		}
		probs := f.gather(policies[i], r.legalMoves, r.sideToMove)
		r.result <- predictResult{value: value, policy: probs}
	}
}

// gather implements spec.md section 4.1: map legal moves to policy
// indices, sum their probabilities, renormalize, and substitute a
// uniform distribution if the sum underflows epsilon.
func (f *Facade) gather(raw []float32, legalMoves []string, sideToMove chess.Color) []float32 {
	indices := f.resolver.Indices(legalMoves, sideToMove)
	probs := make([]float32, len(indices))
	var sum float32
	for i, idx := range indices {
		if idx >= 0 && idx < len(raw) {
			probs[i] = raw[idx]
			sum += probs[i]
		}
	}
	if sum <= math32.SmallestNonzeroFloat32 || sum < renormEpsilon {
		f.warn("degenerate_policy")
		uniform := 1 / float32(len(probs))
		for i := range probs {
			probs[i] = uniform
		}
		return probs
	}
	vecf32.Scale(probs, 1/sum)
	return probs
}
