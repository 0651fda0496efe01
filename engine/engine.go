// Package engine implements the public engine API of spec.md section 6:
// new_game, is_ready, position and go (benchmark lives in the bench
// package), wiring the predictor facade, the game package and the search
// core together the way the teacher's agogo.AZ wires dualnet, game and
// mcts.
package engine

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"
	"github.com/pkg/errors"

	"github.com/crazybeth/crazybeth/game"
	"github.com/crazybeth/crazybeth/predictor"
	"github.com/crazybeth/crazybeth/search"
)

// newRNG seeds the raw-network mode's sampling RNG, following spec.md
// section 9's "Global RNG state": a configured seed, or the clock.
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Config configures a new Engine.
type Config struct {
	Options  search.Options
	ModelDir string
	Loader   Loader
	Encoder  game.Encoder

	// Labels is the predeclared dense label table (spec.md section 4.1
	// dense mode). Ignored when the loaded Executor reports
	// IsPolicyMap().
	Labels []string
	// PolicyIndexOf resolves a UCI move string to a policy-map index
	// (spec.md section 4.1 policy-map mode). Ignored in dense mode.
	PolicyIndexOf func(move string) int

	Chess960 bool
	Seed     int64
	Log      *log.Logger
}

// Engine is the top-level object a UCI front end or benchmark driver
// talks to. It owns the lazily-loaded predictor, the search coordinator
// and the current position.
type Engine struct {
	cfg Config
	log *log.Logger

	mu      sync.Mutex
	ready   bool
	facade  *predictor.Facade
	coord   *search.Coordinator
	pos     game.Position
	moves   []string
}

// New builds an Engine. The model is not loaded until IsReady is called,
// matching spec.md section 6's "is_ready(): lazily load the network".
func New(cfg Config) *Engine {
	if cfg.Encoder == nil {
		cfg.Encoder = game.DefaultEncoder
	}
	if cfg.Log == nil {
		cfg.Log = log.New(logDiscard{}, "", 0)
	}
	return &Engine{cfg: cfg, log: cfg.Log}
}

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

// IsReady lazily loads the network and wires the predictor facade and
// search coordinator on first call; subsequent calls are a cheap
// already-ready check.
func (e *Engine) IsReady(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return true
	}
	if err := e.load(); err != nil {
		e.log.Printf("info string %v", err)
		return false
	}
	e.ready = true
	return true
}

func (e *Engine) load() error {
	if e.cfg.Loader == nil {
		return errors.New("model_load_failed: no Loader configured")
	}
	graphPath, weightPath, err := discoverModelFiles(e.cfg.ModelDir)
	if err != nil {
		return err
	}
	exec, err := e.cfg.Loader(graphPath, weightPath)
	if err != nil {
		return errors.Wrap(err, "model_load_failed")
	}

	var facade *predictor.Facade
	if exec.IsPolicyMap() {
		facade = predictor.NewPolicyMap(e.cfg.PolicyIndexOf, game.PlaneWidth*game.PlaneHeight*2, e.cfg.Options.BatchSize, exec)
	} else {
		facade = predictor.NewDense(e.cfg.Labels, game.PlaneWidth*game.PlaneHeight*2, e.cfg.Options.BatchSize, exec)
	}
	facade.SetWarnLogger(func(s string) { e.log.Printf("info string %s", s) })

	e.facade = facade
	e.coord = search.NewCoordinator(e.cfg.Options, e.predict, e.cfg.Encoder, e.cfg.Seed)
	e.coord.SetLogger(func(format string, args ...interface{}) { e.log.Printf(format, args...) })
	return nil
}

// Options returns the engine's current option set, used to seed a UCI
// loop's local copy before any setoption command arrives.
func (e *Engine) Options() search.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Options
}

// ApplyOptions installs a new option set, pushing it into the live
// coordinator and predictor facade (if already loaded) so a UCI
// setoption command takes effect on the next go, per spec.md section 6.
func (e *Engine) ApplyOptions(opts search.Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Options = opts
	if e.coord != nil {
		e.coord.SetOptions(opts)
	}
	if e.facade != nil {
		e.facade.SetBatchSize(opts.BatchSize)
	}
}

// predict adapts search.PredictFn to the predictor facade's string-move
// shape.
func (e *Engine) predict(ctx context.Context, pos game.Position, legalMoves []game.Move) (float32, []float32, error) {
	planes := e.cfg.Encoder(pos)
	uciMoves := make([]string, len(legalMoves))
	for i, mv := range legalMoves {
		uciMoves[i] = mv.UCI()
	}
	return e.facade.Predict(ctx, planes, uciMoves, pos.SideToMove())
}

// NewGame implements spec.md section 6's new_game(): clears the tree,
// anchors and transposition table.
func (e *Engine) NewGame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.coord != nil {
		e.coord.NewGame()
	}
	e.pos = nil
	e.moves = nil
}

// Position implements spec.md section 6's position(fen_or_startpos,
// [moves]): it sets the current position and, when moves extends the
// previously recorded history by exactly the tail, forwards the new
// moves to the root manager as anchors so the next Go call can reuse
// the matching subtree (spec.md section 4.4).
func (e *Engine) Position(fenOrStartpos string, moves []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pos game.Position
	if fenOrStartpos == "" || fenOrStartpos == "startpos" {
		pos = game.NewGame()
	} else {
		p, err := game.NewFromFEN(fenOrStartpos, e.cfg.Chess960)
		if err != nil {
			return errors.Wrap(err, "invalid fen")
		}
		pos = p
	}

	extends := len(moves) >= len(e.moves)
	if extends {
		for i, m := range e.moves {
			if moves[i] != m {
				extends = false
				break
			}
		}
	}

	applied := make([]game.Move, 0, len(moves))
	for _, uci := range moves {
		mv, ok := findMove(pos, uci)
		if !ok {
			return errors.Errorf("illegal move in position command: %s", uci)
		}
		pos = pos.ApplyMove(mv)
		applied = append(applied, mv)
	}

	if !extends && e.coord != nil {
		e.coord.NewGame()
	} else if e.coord != nil {
		for i := len(e.moves); i < len(moves); i++ {
			ownMove := (i-len(e.moves))%2 == 0
			e.coord.ApplyMoveToTree(applied[i], ownMove)
		}
	}

	e.pos = pos
	e.moves = moves
	return nil
}

func findMove(pos game.Position, uci string) (game.Move, bool) {
	for _, mv := range pos.LegalMoves() {
		if strings.EqualFold(mv.UCI(), uci) {
			return mv, true
		}
	}
	return game.Move{}, false
}

// Go implements spec.md section 6's go(limits) -> eval_info.
func (e *Engine) Go(ctx context.Context, limits search.Limits) (search.EvalInfo, error) {
	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()

	if pos == nil {
		return search.EvalInfo{}, errors.New("no position set")
	}
	if !e.IsReady(ctx) {
		return search.EvalInfo{}, errors.New("model not ready")
	}

	e.mu.Lock()
	coord := e.coord
	opts := e.cfg.Options
	e.mu.Unlock()

	ourTimeMS, ourIncMS := limits.WTimeMS, limits.WIncMS
	if pos.SideToMove() == chess.Black {
		ourTimeMS, ourIncMS = limits.BTimeMS, limits.BIncMS
	}
	phase := phaseForPly(pos.GamePly())

	var info search.EvalInfo
	var err error
	if opts.UseRawNetwork {
		info, err = e.rawNet(ctx, pos)
	} else {
		info, err = coord.Go(ctx, pos, limits, ourTimeMS, ourIncMS, phase)
	}
	if err != nil {
		return search.EvalInfo{}, err
	}

	if info.HasMove {
		e.mu.Lock()
		if coord != nil && !opts.UseRawNetwork {
			coord.ApplyMoveToTree(info.BestMove, true)
		}
		e.moves = append(e.moves, info.BestMove.UCI())
		e.mu.Unlock()
	}
	return info, nil
}

func (e *Engine) rawNet(ctx context.Context, pos game.Position) (search.EvalInfo, error) {
	return search.RawNetMove(ctx, pos, e.predict, len(e.moves), e.cfg.Options, newRNG(e.cfg.Seed))
}

func phaseForPly(ply int) search.Phase {
	switch {
	case ply < 20:
		return search.PhaseOpening
	case ply < 60:
		return search.PhaseMiddlegame
	default:
		return search.PhaseEndgame
	}
}
