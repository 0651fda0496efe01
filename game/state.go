// Package game adapts the notnil/chess rules engine to the opaque "game
// interface" the search core consumes: position identity, legal move
// generation, terminal detection and move application. Nothing in this
// package knows about MCTS, priors or neural network encodings.
package game

import "github.com/notnil/chess"

// Move is an opaque, copyable value produced by the legal-move generator.
// The search core never interprets it beyond equality and UCI text.
type Move struct {
	m *chess.Move
}

// UCI returns the move in UCI long algebraic notation, e.g. "e2e4".
func (mv Move) UCI() string {
	if mv.m == nil {
		return ""
	}
	return chess.UCINotation{}.Encode(nil, mv.m)
}

// IsCapture reports whether the move captures a piece.
func (mv Move) IsCapture() bool { return mv.m != nil && mv.m.HasTag(chess.Capture) }

// IsCheck reports whether the move delivers check.
func (mv Move) IsCheck() bool { return mv.m != nil && mv.m.HasTag(chess.Check) }

// IsZero reports whether this is the zero value (no move).
func (mv Move) IsZero() bool { return mv.m == nil }

// Position is the game interface consumed by the search core (spec.md
// section 6). ChessPosition is the only implementation; the interface
// exists so the core never imports notnil/chess directly.
type Position interface {
	// HashKey returns the 64-bit position identity used for transposition
	// lookups and tree-reuse matching.
	HashKey() uint64
	SideToMove() chess.Color
	IsChess960() bool
	LegalMoves() []Move
	// IsTerminalAndValue reports whether the position is checkmate,
	// stalemate or a draw, and if so the terminal value from the side to
	// move's perspective (-1, 0 or +1).
	IsTerminalAndValue() (terminal bool, value float32)
	GamePly() int
	ApplyMove(mv Move) Position
	FEN() string
	Clone() Position
}
