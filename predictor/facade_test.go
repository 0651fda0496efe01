package predictor

import (
	"context"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

type fakeBatcher struct {
	width int
}

func (f *fakeBatcher) PredictBatch(ctx context.Context, planes *tensor.Dense, batch int) ([]float32, [][]float32, error) {
	values := make([]float32, batch)
	policies := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		values[i] = 0.5
		p := make([]float32, f.width)
		for j := range p {
			p[j] = 1.0 / float32(f.width)
		}
		policies[i] = p
	}
	return values, policies, nil
}

func (f *fakeBatcher) PolicyWidth() int  { return f.width }
func (f *fakeBatcher) IsPolicyMap() bool { return false }

func TestDensePredictNormalizes(t *testing.T) {
	labels := []string{"e2e4", "d2d4", "g1f3"}
	exec := &fakeBatcher{width: len(labels)}
	f := NewDense(labels, 4, 8, exec)
	defer f.Close()

	value, probs, err := f.Predict(context.Background(), make([]float32, 4), []string{"e2e4", "d2d4"}, chess.White)
	require.NoError(t, err)
	require.Equal(t, float32(0.5), value)
	require.Len(t, probs, 2)

	var sum float32
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}

func TestPredictAfterCloseFails(t *testing.T) {
	exec := &fakeBatcher{width: 3}
	f := NewDense([]string{"a", "b", "c"}, 2, 4, exec)
	f.Close()

	_, _, err := f.Predict(context.Background(), make([]float32, 2), []string{"a"}, chess.White)
	require.ErrorIs(t, err, ErrPredictorClosed)
}

func TestSetBatchSizeTakesEffectOnNextCollection(t *testing.T) {
	exec := &fakeBatcher{width: 2}
	f := NewDense([]string{"a", "b"}, 2, 8, exec)
	defer f.Close()

	f.SetBatchSize(1)
	require.Equal(t, int32(1), f.batch.Load())

	value, probs, err := f.Predict(context.Background(), make([]float32, 2), []string{"a"}, chess.White)
	require.NoError(t, err)
	require.Equal(t, float32(0.5), value)
	require.Len(t, probs, 1)
}

func TestDegeneratePolicySubstitutesUniform(t *testing.T) {
	exec := &fakeBatcher{width: 2}
	f := NewDense([]string{"a", "b"}, 2, 4, exec)
	defer f.Close()

	var warned string
	f.SetWarnLogger(func(s string) { warned = s })

	// "z" never resolves to a label, so the gathered sum is zero.
	_, probs, err := f.Predict(context.Background(), make([]float32, 2), []string{"z"}, chess.White)
	require.NoError(t, err)
	require.Equal(t, "degenerate_policy", warned)
	require.Equal(t, float32(1), probs[0])
}
