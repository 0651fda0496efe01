package search

// Limits mirrors the UCI "go" parameters the coordinator accepts
// (spec.md section 4.6/4.8).
type Limits struct {
	MoveTimeMS int // movetime, if > 0, fixes the budget exactly
	WTimeMS    int
	BTimeMS    int
	WIncMS     int
	BIncMS     int
	MovesToGo  int // 0 means "unspecified"
	Nodes      int
	Depth      int
}

// Phase is a coarse game-phase signal used to estimate how many moves
// remain when MovesToGo is unspecified.
type Phase int

const (
	PhaseOpening Phase = iota
	PhaseMiddlegame
	PhaseEndgame
)

// expectedMovesLeft mirrors typical move-count heuristics used by
// UCI-style time managers: fewer moves expected left as the game
// progresses toward the endgame.
func expectedMovesLeft(phase Phase) int {
	switch phase {
	case PhaseOpening:
		return 40
	case PhaseMiddlegame:
		return 30
	default:
		return 20
	}
}

// TimeManager implements spec.md section 4.8: it converts clock-style
// limits into a per-move wall budget and supports early-stop/continue
// decisions mid-search.
type TimeManager struct {
	opts Options

	lastValueEval   float32
	lastSideToMove  bool // true if lastValueEval was recorded for the side currently to move
	haveLastValue   bool
}

func NewTimeManager(opts Options) *TimeManager {
	return &TimeManager{opts: opts}
}

// SetOptions installs a new option set without disturbing the recorded
// lastValueEval, so a setoption between moves doesn't defeat Continue's
// cross-move comparison.
func (tm *TimeManager) SetOptions(opts Options) { tm.opts = opts }

const minBudgetMS = 20

// Budget computes budget_ms per spec.md section 4.8.
func (tm *TimeManager) Budget(limits Limits, ourTimeMS, ourIncMS int, phase Phase) int {
	if limits.MoveTimeMS > 0 {
		return limits.MoveTimeMS
	}

	overhead := tm.opts.MoveOverhead
	movesToGo := limits.MovesToGo
	if movesToGo <= 0 {
		movesToGo = expectedMovesLeft(phase)
	}

	available := ourTimeMS - overhead
	if available < 0 {
		available = 0
	}

	budget := available/movesToGo + ourIncMS
	if budget < minBudgetMS {
		budget = minBudgetMS
	}
	if budget > available {
		budget = available
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}

// EarlyStop implements spec.md section 4.8: triggered at the half-budget
// mark when the top move by policy has prior_or_policy > 0.9 AND matches
// the argmax of q values.
func (tm *TimeManager) EarlyStop(root *Node, policy []float32) bool {
	if root == nil || len(policy) == 0 {
		return false
	}
	topPolicy := 0
	for i := 1; i < len(policy); i++ {
		if policy[i] > policy[topPolicy] {
			topPolicy = i
		}
	}
	if policy[topPolicy] <= 0.9 {
		return false
	}
	topQ := 0
	bestQ := root.Q(0)
	for i := 1; i < root.NumChildren(); i++ {
		if q := root.Q(i); q > bestQ {
			bestQ = q
			topQ = i
		}
	}
	return topPolicy == topQ
}

// Continue implements spec.md section 4.8 and its section 9 fix: the
// stored lastValueEval is sign-corrected for side to move before
// comparison, since consecutive searches can face opposite sides.
func (tm *TimeManager) Continue(limits Limits, root *Node, sideToMoveFlip bool) bool {
	if limits.MovesToGo == 1 || limits.MoveTimeMS > 0 {
		return false
	}
	if !tm.haveLastValue {
		return false
	}
	visitArgmax := 0
	var bestVisits uint64
	for i := 0; i < root.NumChildren(); i++ {
		if v := root.Visits(i); v > bestVisits {
			bestVisits = v
			visitArgmax = i
		}
	}
	currentQ := root.Q(visitArgmax)

	prev := tm.lastValueEval
	if sideToMoveFlip {
		prev = -prev
	}
	return currentQ < prev-0.1
}

// RecordValueEval stores q as the reference value for the next
// Continue() comparison.
func (tm *TimeManager) RecordValueEval(q float32) {
	tm.lastValueEval = q
	tm.haveLastValue = true
}
