package search

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/crazybeth/crazybeth/game"
)

// PrincipalVariation descends the child with maximum visits[i] from root
// repeatedly, per spec.md section 4.7.
func PrincipalVariation(root *Node, maxLen int) []game.Move {
	var pv []game.Move
	node := root
	for len(pv) < maxLen && node != nil && node.NumChildren() > 0 && node.HasNNResults() && !node.IsTerminal() {
		best := 0
		var bestVisits uint64
		for i := 0; i < node.NumChildren(); i++ {
			if v := node.Visits(i); v > bestVisits {
				bestVisits = v
				best = i
			}
		}
		if bestVisits == 0 {
			break
		}
		pv = append(pv, node.LegalMoves()[best])
		node = node.Child(best)
	}
	return pv
}

// SelectMove implements spec.md section 4.7's final-move choice: sample
// from a temperature-sharpened policy while within temperatureMoves,
// otherwise take the first move of the principal variation.
func SelectMove(root *Node, policy []float32, moveCounter, temperatureMoves int, temperature float32, rng *rand.Rand) game.Move {
	if moveCounter <= temperatureMoves && temperature > 0.01 {
		sharpened := sharpen(policy, temperature)
		idx := sampleCategorical(sharpened, rng)
		return root.LegalMoves()[idx]
	}
	pv := PrincipalVariation(root, 1)
	if len(pv) > 0 {
		return pv[0]
	}
	// No visited children (e.g. a search that never ran): fall back to
	// argmax prior.
	best := 0
	for i := 1; i < root.NumChildren(); i++ {
		if root.Prior(i) > root.Prior(best) {
			best = i
		}
	}
	return root.LegalMoves()[best]
}

func sharpen(policy []float32, temperature float32) []float32 {
	out := make([]float32, len(policy))
	var sum float32
	for i, p := range policy {
		v := math32.Pow(p, 1/temperature)
		out[i] = v
		sum += v
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

func sampleCategorical(p []float32, rng *rand.Rand) int {
	r := rng.Float32()
	var accum float32
	for i, v := range p {
		accum += v
		if r < accum {
			return i
		}
	}
	return len(p) - 1
}

// CentipawnFromQ converts a root Q value to a centipawn display score:
// cp = round(k * tan(c * q)), per spec.md section 4.7.
func CentipawnFromQ(q, k, c float32) int {
	return int(math32.Round(k * math32.Tan(c*q)))
}
