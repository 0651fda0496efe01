package game

import "github.com/notnil/chess"

// PlaneWidth, PlaneHeight are the board-plane dimensions the default
// encoder below produces. Board-to-planes encoding is an external
// collaborator per spec.md section 1; DefaultEncoder exists only as the
// same illustrative convenience the teacher shipped in
// game/encoding.go, not as part of the core search contract.
const (
	PlaneWidth  = 8
	PlaneHeight = 8
)

// Encoder turns a Position into the flat float32 plane buffer the
// predictor facade batches up and hands to the external network
// executor.
type Encoder func(p Position) []float32

// DefaultEncoder is a minimal two-plane encoding (piece values, side to
// move), adapted from the teacher's InputEncoder. Real deployments are
// expected to supply a richer Encoder; the core never inspects the
// contents of the plane buffer it is handed.
func DefaultEncoder(p Position) []float32 {
	cp, ok := p.(*ChessPosition)
	if !ok {
		return make([]float32, 2*PlaneWidth*PlaneHeight)
	}
	board := cp.g.Position().Board()
	squares := board.SquareMap()

	pieces := make([]float32, PlaneWidth*PlaneHeight)
	for sq, pc := range squares {
		if pc == chess.NoPiece {
			continue
		}
		pieces[int(sq)] = float32(pc)
	}

	turn := make([]float32, PlaneWidth*PlaneHeight)
	side := float32(0)
	if p.SideToMove() == chess.Black {
		side = 1
	}
	for i := range turn {
		turn[i] = side
	}

	out := make([]float32, 0, len(pieces)+len(turn))
	out = append(out, pieces...)
	out = append(out, turn...)
	return out
}
