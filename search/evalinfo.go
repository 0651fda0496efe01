package search

import "github.com/crazybeth/crazybeth/game"

// EvalInfo is the per-move output of a search call (spec.md section 3),
// grounded on CrazyAra's EvalInfo / mctsagent.cpp's
// evalute_board_state.
type EvalInfo struct {
	BestMove      game.Move
	HasMove       bool
	PV            []game.Move
	Policy        []float32
	CentipawnsCP  int
	NodesSearched uint64
	NodesReused   uint64
	ElapsedMS     int64
	NodesPerSec   float64
	PVDepth       int

	Warnings []string
}
