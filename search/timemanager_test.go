package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgetUsesMoveTimeWhenSet(t *testing.T) {
	tm := NewTimeManager(DefaultOptions())
	budget := tm.Budget(Limits{MoveTimeMS: 500}, 60000, 0, PhaseMiddlegame)
	require.Equal(t, 500, budget)
}

func TestBudgetClampsToMinimum(t *testing.T) {
	opts := DefaultOptions()
	opts.MoveOverhead = 50
	tm := NewTimeManager(opts)
	budget := tm.Budget(Limits{}, 100, 0, PhaseEndgame)
	require.GreaterOrEqual(t, budget, minBudgetMS)
}

func TestBudgetNeverExceedsAvailableTime(t *testing.T) {
	opts := DefaultOptions()
	opts.MoveOverhead = 50
	tm := NewTimeManager(opts)
	budget := tm.Budget(Limits{MovesToGo: 1}, 1000, 0, PhaseMiddlegame)
	require.LessOrEqual(t, budget, 1000-50)
}

func TestEarlyStopTriggersOnDominantPolicyAndQ(t *testing.T) {
	root := threeMoveNode()
	root.Expand(0, []float32{1.0 / 3, 1.0 / 3, 1.0 / 3})
	for i := 0; i < 19; i++ {
		root.Backup(0, 0.5)
	}
	root.Backup(1, -0.5)
	root.Backup(2, -0.5)

	tm := NewTimeManager(DefaultOptions())
	policy := root.GetMCTSPolicy(0, 0)
	require.True(t, tm.EarlyStop(root, policy), "policy %v should be dominant enough to early-stop", policy)
}

func TestEarlyStopFalseWhenPolicyNotDominant(t *testing.T) {
	root := threeMoveNode()
	root.Expand(0, []float32{0.4, 0.3, 0.3})
	root.Backup(0, 1)
	root.Backup(1, 1)
	root.Backup(2, -1)

	tm := NewTimeManager(DefaultOptions())
	policy := root.GetMCTSPolicy(0, 0)
	require.False(t, tm.EarlyStop(root, policy))
}

func TestContinueFalseWithoutPriorValue(t *testing.T) {
	root := threeMoveNode()
	root.Expand(0, []float32{1, 1, 1})
	tm := NewTimeManager(DefaultOptions())
	require.False(t, tm.Continue(Limits{}, root, false))
}

func TestContinueTriggersWhenQRegresses(t *testing.T) {
	root := threeMoveNode()
	root.Expand(0, []float32{1, 1, 1})
	root.Backup(0, 0.5)

	tm := NewTimeManager(DefaultOptions())
	tm.RecordValueEval(0.8)
	require.True(t, tm.Continue(Limits{}, root, false))
}

func TestContinueSkippedWhenOneMoveLeftOrFixedMoveTime(t *testing.T) {
	root := threeMoveNode()
	root.Expand(0, []float32{1, 1, 1})
	tm := NewTimeManager(DefaultOptions())
	tm.RecordValueEval(0.8)
	require.False(t, tm.Continue(Limits{MovesToGo: 1}, root, false))
	require.False(t, tm.Continue(Limits{MoveTimeMS: 100}, root, false))
}
