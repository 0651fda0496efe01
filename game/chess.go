package game

import (
	"encoding/binary"

	"github.com/notnil/chess"
)

// ChessPosition is the default Position implementation, grounded on the
// teacher's game/chess.go: it wraps a *chess.Game and answers the
// search core's questions about legality, turn and termination.
type ChessPosition struct {
	g         *chess.Game
	chess960  bool
}

// NewGame returns the standard chess starting position.
func NewGame() *ChessPosition {
	return &ChessPosition{g: chess.NewGame(chess.UseNotation(chess.UCINotation{}))}
}

// NewFromFEN returns the position described by fen. chess960 marks the
// position as played under Chess960 castling rules for UCI reporting;
// notnil/chess does not itself distinguish the variant, so this is
// tracked alongside the game the way spec.md section 6's is_chess960()
// requires.
func NewFromFEN(fen string, chess960 bool) (*ChessPosition, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	g := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	return &ChessPosition{g: g, chess960: chess960}, nil
}

// HashKey folds notnil/chess's 16-byte Zobrist-ish position hash into the
// 64-bit key spec.md's data model requires for transposition lookups.
func (p *ChessPosition) HashKey() uint64 {
	h := p.g.Position().Hash()
	lo := binary.LittleEndian.Uint64(h[:8])
	hi := binary.LittleEndian.Uint64(h[8:])
	return lo ^ hi
}

func (p *ChessPosition) SideToMove() chess.Color { return p.g.Position().Turn() }

func (p *ChessPosition) IsChess960() bool { return p.chess960 }

// LegalMoves returns every legal move from the current position in the
// order notnil/chess generates them; the search core treats this order
// as the canonical child index order for a freshly expanded node.
func (p *ChessPosition) LegalMoves() []Move {
	valid := p.g.ValidMoves()
	out := make([]Move, len(valid))
	for i, m := range valid {
		out[i] = Move{m: m}
	}
	return out
}

// IsTerminalAndValue reports checkmate/stalemate/draw and the terminal
// value from the side to move's perspective: being checkmated is a loss
// (-1) for the side to move, any draw is 0.
func (p *ChessPosition) IsTerminalAndValue() (bool, float32) {
	outcome := p.g.Outcome()
	if outcome == chess.NoOutcome {
		return false, 0
	}
	if outcome == chess.Draw {
		return true, 0
	}
	turn := p.g.Position().Turn()
	winner := chess.White
	if outcome == chess.BlackWon {
		winner = chess.Black
	}
	if winner == turn {
		return true, 1
	}
	return true, -1
}

func (p *ChessPosition) GamePly() int { return len(p.g.Moves()) }

// ApplyMove returns a new Position with mv applied; it never mutates p,
// matching the teacher's Clone-before-MoveStr discipline in Apply().
func (p *ChessPosition) ApplyMove(mv Move) Position {
	next := p.g.Clone()
	if err := next.Move(mv.m); err != nil {
		panic(err)
	}
	return &ChessPosition{g: next, chess960: p.chess960}
}

func (p *ChessPosition) FEN() string { return p.g.FEN() }

func (p *ChessPosition) Clone() Position {
	return &ChessPosition{g: p.g.Clone(), chess960: p.chess960}
}

// Draw renders the board for logging / benchmark reports.
func (p *ChessPosition) Draw() string { return p.g.Position().Board().Draw() }
