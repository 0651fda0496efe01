package search

import "github.com/pkg/errors"

// Options mirrors the UCI option table of spec.md section 6, modeled on
// optionsuci.cpp's Option(value, min, max) triples and the teacher's
// dual.Config/mcts.Config "plain struct + IsValid()" shape.
type Options struct {
	Threads   int
	BatchSize int

	CentiCPuctInit float32
	CPuctBase      float32
	CentiUInit     float32
	CentiUMin      float32
	UBase          float32

	CentiDirichletEpsilon float32
	CentiDirichletAlpha   float32

	CentiQValueWeight float32
	CentiQThreshInit  float32
	CentiQThreshMax   float32
	QThreshBase       float32

	MaxSearchDepth int
	Nodes          int
	MoveOverhead   int

	CentiTemperature float32
	TemperatureMoves int

	VirtualLoss int32

	UseRawNetwork         bool
	EnhanceChecks         bool
	EnhanceCaptures       bool
	UseTranspositionTable bool
}

// DefaultOptions mirrors optionsuci.cpp's OptionsUCI::init defaults.
func DefaultOptions() Options {
	return Options{
		Threads:   1,
		BatchSize: 8,

		CentiCPuctInit: 250,
		CPuctBase:      19652,
		CentiUInit:     100,
		CentiUMin:      100,
		UBase:          1965,

		CentiDirichletEpsilon: 100,
		CentiDirichletAlpha:   20,

		CentiQValueWeight: 70,
		CentiQThreshInit:  50,
		CentiQThreshMax:   90,
		QThreshBase:       1965,

		MaxSearchDepth: 99,
		Nodes:          0,
		MoveOverhead:   50,

		CentiTemperature: 0,
		TemperatureMoves: 0,

		VirtualLoss: 3,

		UseRawNetwork:         false,
		EnhanceChecks:         true,
		EnhanceCaptures:       false,
		UseTranspositionTable: false,
	}
}

// PUCTConfig derives the per-selection PUCT parameters from the option
// table's "Centi_" integer-percent encoding.
func (o Options) PUCTConfig(qInit float32) PUCTConfig {
	return PUCTConfig{
		CPuctInit:          o.CentiCPuctInit / 100,
		CPuctBase:          o.CPuctBase,
		UInit:              o.CentiUInit / 100,
		UMin:               o.CentiUMin / 100,
		UBase:              o.UBase,
		VirtualLossPenalty: 1,
		QInit:              qInit,
	}
}

// DirichletParams returns (alpha, epsilon) for apply_dirichlet.
func (o Options) DirichletParams() (alpha, epsilon float64) {
	return float64(o.CentiDirichletAlpha) / 100, float64(o.CentiDirichletEpsilon) / 100
}

// QWeightThresh returns (q_weight, q_thresh) for get_mcts_policy, with
// q_thresh scaled between its init and max by node count per Q_Thresh_Base,
// mirroring the way Centi_Q_Thresh_Init/Max/Base interact in the UCI table.
func (o Options) QWeightThresh(totalVisits uint64) (qWeight, qThresh float32) {
	qWeight = o.CentiQValueWeight / 100
	thresh := o.CentiQThreshInit/100 + (o.CentiQThreshMax-o.CentiQThreshInit)/100*float32(totalVisits)/(float32(totalVisits)+o.QThreshBase)
	return qWeight, thresh
}

// Temperature returns the move-selection temperature.
func (o Options) Temperature() float32 { return o.CentiTemperature / 100 }

// Validate reports option_out_of_range errors for the Threads,
// Batch_Size, Centi_CPuct_Init and Move_Overhead ranges; other fields
// are not range-checked.
func (o Options) Validate() error {
	switch {
	case o.Threads < 1 || o.Threads > 512:
		return errors.New("option_out_of_range: Threads must be in [1, 512]")
	case o.BatchSize < 1 || o.BatchSize > 8192:
		return errors.New("option_out_of_range: Batch_Size must be in [1, 8192]")
	case o.CentiCPuctInit < 1 || o.CentiCPuctInit > 99999:
		return errors.New("option_out_of_range: Centi_CPuct_Init must be in [1, 99999]")
	case o.MoveOverhead < 0 || o.MoveOverhead > 5000:
		return errors.New("option_out_of_range: Move_Overhead must be in [0, 5000]")
	}
	return nil
}
