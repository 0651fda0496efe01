// Package bench implements spec.md section 6's benchmark(suite): run
// search over a curated list of positions and aggregate nodes/s and
// depth, grounded on the teacher's board-drawing intent in agogo's
// Arena (which draws a board to the terminal via chess.Board.Draw())
// generalized here into a PNG diagram per position for the aggregated
// report.
package bench

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/crazybeth/crazybeth/engine"
	"github.com/crazybeth/crazybeth/search"
)

// Position is one curated benchmark entry.
type Position struct {
	Name  string
	FEN   string // empty means the standard starting position
	Limit search.Limits
}

// Result is one position's outcome plus a rendered board diagram.
type Result struct {
	Position      Position
	Info          search.EvalInfo
	NodesPerSec   float64
	DiagramPNG    []byte
}

// Summary aggregates a benchmark run across every position.
type Summary struct {
	Results       []Result
	TotalNodes    uint64
	TotalElapsed  int64
	AverageNPS    float64
	AveragePVDepth float64
}

// Run executes eng.Go over every position in suite and aggregates the
// per-call EvalInfo into a Summary, per spec.md section 6's
// benchmark(suite).
func Run(ctx context.Context, eng *engine.Engine, suite []Position) (Summary, error) {
	var sum Summary
	var depthTotal int

	for _, p := range suite {
		eng.NewGame()
		fenOrStartpos := "startpos"
		if p.FEN != "" {
			fenOrStartpos = p.FEN
		}
		if err := eng.Position(fenOrStartpos, nil); err != nil {
			return Summary{}, fmt.Errorf("benchmark: position %q: %w", p.Name, err)
		}

		info, err := eng.Go(ctx, p.Limit)
		if err != nil {
			return Summary{}, fmt.Errorf("benchmark: search %q: %w", p.Name, err)
		}

		diagram, err := renderDiagram(p, info)
		if err != nil {
			return Summary{}, fmt.Errorf("benchmark: render %q: %w", p.Name, err)
		}

		sum.Results = append(sum.Results, Result{
			Position:    p,
			Info:        info,
			NodesPerSec: info.NodesPerSec,
			DiagramPNG:  diagram,
		})
		sum.TotalNodes += info.NodesSearched
		sum.TotalElapsed += info.ElapsedMS
		depthTotal += info.PVDepth
	}

	if len(sum.Results) > 0 {
		sum.AveragePVDepth = float64(depthTotal) / float64(len(sum.Results))
	}
	if sum.TotalElapsed > 0 {
		sum.AverageNPS = float64(sum.TotalNodes) / (float64(sum.TotalElapsed) / 1000)
	}
	return sum, nil
}

const (
	diagramWidth  = 320
	diagramHeight = 60
)

// renderDiagram draws a small PNG annotation summarizing the position
// name, chosen best move and nodes/s, using x/image's built-in bitmap
// face (no external font asset needed).
func renderDiagram(p Position, info search.EvalInfo) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, diagramWidth, diagramHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	best := "(none)"
	if info.HasMove {
		best = info.BestMove.UCI()
	}
	lines := []string{
		p.Name,
		fmt.Sprintf("best=%s cp=%d", best, info.CentipawnsCP),
		fmt.Sprintf("nodes=%d nps=%.0f", info.NodesSearched, info.NodesPerSec),
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: color.Black},
		Face: basicfont.Face7x13,
	}
	y := 14
	for _, line := range lines {
		d.Dot = fixed.P(4, y)
		d.DrawString(line)
		y += 16
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
