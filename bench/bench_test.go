package bench

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/crazybeth/crazybeth/engine"
	"github.com/crazybeth/crazybeth/search"
)

type uniformExecutor struct{ width int }

func (u *uniformExecutor) PredictBatch(ctx context.Context, planes *tensor.Dense, batch int) ([]float32, [][]float32, error) {
	values := make([]float32, batch)
	policies := make([][]float32, batch)
	for i := range policies {
		policies[i] = make([]float32, u.width)
	}
	return values, policies, nil
}

func (u *uniformExecutor) PolicyWidth() int  { return u.width }
func (u *uniformExecutor) IsPolicyMap() bool { return false }

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "net.pb"), []byte("graph"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "net.params"), []byte("weights"), 0o644))

	opts := search.DefaultOptions()
	opts.Threads = 1
	opts.BatchSize = 1
	return engine.New(engine.Config{
		Options:  opts,
		ModelDir: dir,
		Loader:   func(string, string) (engine.Executor, error) { return &uniformExecutor{width: 4096}, nil },
		Labels:   []string{"e2e4", "d2d4", "g1f3"},
		Seed:     1,
	})
}

func TestRunAggregatesAcrossSuite(t *testing.T) {
	eng := newTestEngine(t)
	suite := []Position{
		{Name: "startpos", Limit: search.Limits{MoveTimeMS: 50}},
		{Name: "kiwipete", FEN: "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", Limit: search.Limits{MoveTimeMS: 50}},
	}

	summary, err := Run(context.Background(), eng, suite)
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)
	require.Greater(t, summary.TotalNodes, uint64(0))
	for _, r := range summary.Results {
		require.NotEmpty(t, r.DiagramPNG)
		_, err := png.Decode(bytes.NewReader(r.DiagramPNG))
		require.NoError(t, err)
	}
}

func TestRenderDiagramProducesDecodablePNG(t *testing.T) {
	info := search.EvalInfo{
		HasMove:       true,
		NodesSearched: 1234,
		NodesPerSec:   5678,
		CentipawnsCP:  42,
	}

	pngBytes, err := renderDiagram(Position{Name: "test"}, info)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.Equal(t, diagramWidth, img.Bounds().Dx())
	require.Equal(t, diagramHeight, img.Bounds().Dy())
}
