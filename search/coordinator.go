package search

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/crazybeth/crazybeth/game"
	"github.com/hashicorp/go-multierror"
)

// Coordinator implements spec.md section 4.6: it spawns workers,
// enforces time/node/depth limits, collects the final policy and
// returns the chosen move. Grounded on agent.cpp's perform_action and
// mctsagent.cpp's evalute_board_state.
type Coordinator struct {
	opts    Options
	tt      *Transposition
	root    *RootManager
	predict PredictFn
	enc     game.Encoder
	tm      *TimeManager
	rng     *rand.Rand

	moveCounter int
	logf        func(format string, args ...interface{})

	// lastValuePos is the position whose root Q was last handed to
	// tm.RecordValueEval, kept to compare its side to move with the next
	// search's.
	lastValuePos game.Position
}

// NewCoordinator wires a coordinator for one game. predict is the
// closure the coordinator and its workers use to evaluate positions
// (normally backed by a predictor.Facade); enc encodes positions into
// the plane buffers predict ultimately hands to the network executor.
func NewCoordinator(opts Options, predict PredictFn, enc game.Encoder, seed int64) *Coordinator {
	tt := NewTransposition(opts.UseTranspositionTable)
	src := seed
	if src == 0 {
		src = time.Now().UnixNano()
	}
	return &Coordinator{
		opts:    opts,
		tt:      tt,
		root:    NewRootManager(tt, opts, seed),
		predict: predict,
		enc:     enc,
		tm:      NewTimeManager(opts),
		rng:     rand.New(rand.NewSource(src)),
		logf:    func(string, ...interface{}) {},
	}
}

// SetLogger installs a sink for "info string ..."-style diagnostics.
func (c *Coordinator) SetLogger(logf func(format string, args ...interface{})) { c.logf = logf }

// SetOptions installs a new option set, propagating it to the root
// manager and time manager the coordinator owns. Like RootManager's own
// SetOptions, this must only be called between searches.
func (c *Coordinator) SetOptions(opts Options) {
	c.opts = opts
	c.tt.Enabled = opts.UseTranspositionTable
	c.root.SetOptions(opts)
	c.tm.SetOptions(opts)
}

// Options returns the coordinator's current option set.
func (c *Coordinator) Options() Options { return c.opts }

// NewGame resets all search state: tree, anchors and transposition
// table.
func (c *Coordinator) NewGame() {
	c.root.ClearGameHistory()
	c.moveCounter = 0
}

// ApplyMoveToTree forwards to the root manager, and advances the ply
// counter move-selection temperature decays against.
func (c *Coordinator) ApplyMoveToTree(mv game.Move, ownMove bool) {
	c.root.ApplyMoveToTree(mv, ownMove)
	c.moveCounter++
}

// Go implements spec.md section 4.6's entry point.
func (c *Coordinator) Go(ctx context.Context, pos game.Position, limits Limits, ourTimeMS, ourIncMS int, phase Phase) (EvalInfo, error) {
	start := time.Now()

	root, nodesPreSearch, err := c.root.Prepare(ctx, pos, c.predict)
	if err != nil {
		return EvalInfo{}, err
	}
	visitsBefore := root.TotalVisits()

	if terminal, v := pos.IsTerminalAndValue(); terminal {
		return EvalInfo{
			HasMove:      false,
			CentipawnsCP: CentipawnFromQ(v, 370, 1.2),
			ElapsedMS:    time.Since(start).Milliseconds(),
		}, nil
	}

	if root.NumChildren() == 0 {
		return EvalInfo{HasMove: false, ElapsedMS: time.Since(start).Milliseconds()}, nil
	}
	if root.NumChildren() == 1 {
		return EvalInfo{
			HasMove:       true,
			BestMove:      root.LegalMoves()[0],
			PV:            []game.Move{root.LegalMoves()[0]},
			NodesSearched: 0,
			NodesReused:   nodesPreSearch,
			ElapsedMS:     time.Since(start).Milliseconds(),
		}, nil
	}

	stop := make(chan struct{})
	var once sync.Once
	setStop := func() { once.Do(func() { close(stop) }) }

	// A cancelled context (e.g. a UCI "stop" command forwarded by the
	// caller) is itself a stop source, independent of the budget timers
	// below.
	go func() {
		select {
		case <-ctx.Done():
			setStop()
		case <-stop:
		}
	}()

	// limits.Nodes/limits.Depth are the per-call "go nodes"/"go depth"
	// overrides from spec.md section 4.6; combined with the configured
	// option when both are set, the tighter of the two applies.
	workerOpts := c.opts
	workerOpts.Nodes = minNonZero(c.opts.Nodes, limits.Nodes)
	workerOpts.MaxSearchDepth = minNonZero(c.opts.MaxSearchDepth, limits.Depth)

	if workerOpts.Nodes > 0 {
		go c.watchNodeBudget(root, workerOpts.Nodes, nodesPreSearch, stop, setStop)
	}

	var errMu sync.Mutex
	var workerErrs []error
	onErr := func(err error) {
		errMu.Lock()
		workerErrs = append(workerErrs, err)
		errMu.Unlock()
		setStop()
	}

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Threads; i++ {
		w := NewWorker(i, c.tt, workerOpts, c.predict, stop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, pos, root, onErr)
		}()
	}

	budget := c.tm.Budget(limits, ourTimeMS, ourIncMS, phase)
	flipLastValue := c.lastValuePos != nil && c.lastValuePos.SideToMove() != pos.SideToMove()
	c.runBudget(root, budget, limits, flipLastValue, stop, setStop)

	setStop()
	wg.Wait()

	if aggErr := aggregateWorkerErrors(workerErrs); aggErr != nil {
		c.logf("info string predictor error: %v", aggErr)
		if root.TotalVisits() == visitsBefore {
			// No trajectory completed a backup: best-effort fallback to
			// the root's first legal move, per spec.md section 7.
			return EvalInfo{
				HasMove:   true,
				BestMove:  root.LegalMoves()[0],
				PV:        []game.Move{root.LegalMoves()[0]},
				Warnings:  []string{"predictor_inference_failed: " + aggErr.Error()},
				ElapsedMS: time.Since(start).Milliseconds(),
			}, nil
		}
	}

	qWeight, qThresh := c.opts.QWeightThresh(root.TotalVisits())
	policy := root.GetMCTSPolicy(qWeight, qThresh)
	bestIdx := argmaxFloat32(policy)

	pv := PrincipalVariation(root, workerOpts.MaxSearchDepth)
	bestMove := SelectMove(root, policy, c.moveCounter, c.opts.TemperatureMoves, c.opts.Temperature(), c.rng)

	elapsed := time.Since(start)
	nodesSearched := root.TotalVisits() - nodesPreSearch
	var nps float64
	if elapsed.Seconds() > 0 {
		nps = float64(nodesSearched) / elapsed.Seconds()
	}

	c.tm.RecordValueEval(root.Q(bestIdx))
	c.lastValuePos = pos

	return EvalInfo{
		HasMove:       true,
		BestMove:      bestMove,
		PV:            pv,
		Policy:        policy,
		CentipawnsCP:  CentipawnFromQ(root.Q(bestIdx), 370, 1.2),
		NodesSearched: nodesSearched,
		NodesReused:   nodesPreSearch,
		ElapsedMS:     elapsed.Milliseconds(),
		NodesPerSec:   nps,
		PVDepth:       len(pv),
	}, nil
}

// minNonZero returns the smaller of a and b, treating a non-positive
// value as "unset" rather than as the minimum.
func minNonZero(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// runBudget implements spec.md section 4.6 step 4: sleep half, check
// early stop, sleep the remaining half, check continue (which may add
// another half), then stop.
func (c *Coordinator) runBudget(root *Node, budgetMS int, limits Limits, flipLastValue bool, stop chan struct{}, setStop func()) {
	half := time.Duration(budgetMS/2) * time.Millisecond

	select {
	case <-time.After(half):
	case <-stop:
		return
	}

	qWeight, qThresh := c.opts.QWeightThresh(root.TotalVisits())
	policy := root.GetMCTSPolicy(qWeight, qThresh)
	if c.tm.EarlyStop(root, policy) {
		setStop()
		return
	}

	select {
	case <-time.After(half):
	case <-stop:
		return
	}

	// When the previous search was made for the other side to move, the
	// value it recorded is sign-flipped before comparison (spec.md
	// section 9's Continue fix).
	if c.tm.Continue(limits, root, flipLastValue) {
		select {
		case <-time.After(half):
		case <-stop:
		}
	}
	setStop()
}

func (c *Coordinator) watchNodeBudget(root *Node, maxNodes int, nodesPreSearch uint64, stop chan struct{}, setStop func()) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if root.TotalVisits()-nodesPreSearch >= uint64(maxNodes) {
				setStop()
				return
			}
		}
	}
}

func argmaxFloat32(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// aggregateWorkerErrors folds per-worker errors into one, per spec.md
// section 7's "coordinator surfaces a single aggregated outcome".
func aggregateWorkerErrors(errs []error) error {
	var merged *multierror.Error
	for _, e := range errs {
		if e != nil {
			merged = multierror.Append(merged, e)
		}
	}
	return merged.ErrorOrNil()
}
