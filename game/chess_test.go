package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGameLegalMoves(t *testing.T) {
	p := NewGame()
	moves := p.LegalMoves()
	require.Len(t, moves, 20, "startpos has 20 legal moves")
	terminal, _ := p.IsTerminalAndValue()
	require.False(t, terminal)
}

func TestApplyMoveAdvancesPly(t *testing.T) {
	p := NewGame()
	moves := p.LegalMoves()
	next := p.ApplyMove(moves[0])
	require.Equal(t, 1, next.GamePly())
	require.Equal(t, 0, p.GamePly(), "ApplyMove must not mutate the receiver")
}

func TestHashKeyStableAcrossClone(t *testing.T) {
	p := NewGame()
	clone := p.Clone()
	require.Equal(t, p.HashKey(), clone.HashKey())
}

func TestCheckmateIsTerminal(t *testing.T) {
	// Fool's mate.
	p := NewGame()
	for _, uci := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		moves := p.LegalMoves()
		var applied bool
		for _, m := range moves {
			if m.UCI() == uci {
				p = p.ApplyMove(m).(*ChessPosition)
				applied = true
				break
			}
		}
		require.True(t, applied, "move %s should be legal", uci)
	}
	terminal, value := p.IsTerminalAndValue()
	require.True(t, terminal)
	require.Equal(t, float32(-1), value, "side to move (white) has been mated")
}

func TestFENRoundTrip(t *testing.T) {
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	p, err := NewFromFEN(fen, false)
	require.NoError(t, err)
	require.Equal(t, fen, p.FEN())
}
