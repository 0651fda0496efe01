package predictor

import (
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// denseResolver implements spec.md section 4.1's dense mode: moves are
// looked up in a predeclared label table, mirrored vertically when the
// side to move is the non-canonical color (Black; White is canonical).
type denseResolver struct {
	index map[string]int
}

func newDenseResolver(labels []string) *denseResolver {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return &denseResolver{index: idx}
}

func (d *denseResolver) Indices(legalMoves []string, sideToMove chess.Color) []int {
	out := make([]int, len(legalMoves))
	for i, m := range legalMoves {
		text := m
		if sideToMove == chess.Black {
			text = mirrorUCI(m)
		}
		if idx, ok := d.index[text]; ok {
			out[i] = idx
		} else {
			out[i] = -1
		}
	}
	return out
}

// mirrorUCI flips a UCI move's rank digits top-to-bottom (rank r becomes
// 9-r), the standard AlphaZero-style canonicalization of a board as seen
// by the side to move, so a single label table can serve both colors.
func mirrorUCI(uci string) string {
	var b strings.Builder
	for _, r := range uci {
		if r >= '1' && r <= '8' {
			n, _ := strconv.Atoi(string(r))
			b.WriteString(strconv.Itoa(9 - n))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// policyMapResolver implements spec.md section 4.1's policy-map mode:
// the policy is already aligned with the board-plane layout, so indices
// are read directly through a caller-supplied lookup with no mirroring.
type policyMapResolver struct {
	indexOf func(move string) int
}

func (p *policyMapResolver) Indices(legalMoves []string, _ chess.Color) []int {
	out := make([]int, len(legalMoves))
	for i, m := range legalMoves {
		out[i] = p.indexOf(m)
	}
	return out
}
