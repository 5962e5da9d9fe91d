// Package ilp builds and solves the MILP formulation from spec §4.3:
// binary input/participant and change/participant variables, a
// per-participant value-balance equation, lexicographic symmetry
// breaking on minimum input index, and a dust guard on change
// outputs. The solver behind it is a native depth-first
// branch-and-bound search (see branch_and_bound.go) rather than a
// binding to an external MILP package — no ILP/MILP library appears
// anywhere in the retrieved reference corpus, so this follows the
// corpus's own pattern (teacher's cpsat_solver.go, dp_solver.go) of
// hand-rolling the combinatorial search behind a narrow interface.
package ilp

// FixedParticipant describes a participant the preprocessor already
// locked in full: a single owned input, an optional change index, and
// a known signed fee. These are folded into the model as constants —
// never as branching variables — so no cut can ever contradict them
// (spec §9 Open Questions).
type FixedParticipant struct {
	InputIndex  int
	ChangeIndex *int
	Fee         int64
}

// Model is the MILP instance: the transaction data plus whatever the
// preprocessor left unassigned.
type Model struct {
	N int

	Inputs      []int64
	Outputs     []int64
	EqualAmount int64

	Fixed []FixedParticipant

	UnassignedInputs  []int // ascending
	UnassignedChanges []int // ascending

	MaxFeeAbs     int64 // per-maker fee tolerance (floor(maxFeeRel * equalAmount))
	NetworkFee    int64
	DustThreshold int64

	// BigM bounds any single participant's contributed value; derived
	// from data per spec §9 Design Notes rather than hardcoded.
	BigM int64

	// cuts accumulated across enumeration iterations; each is one
	// previously emitted full valuation of every participant slot.
	cuts []cutValuation
}

// cutValuation is one prior solution's full participant-ownership
// valuation, stored so the solver can refuse to re-derive it. Fixed
// participants are included too even though they never vary between
// solves: comparing the full valuation is simpler than carving out the
// free subset and costs nothing, since the fixed entries always match.
// Because symmetry breaking already selects one representative per
// permutation orbit, excluding this exact valuation is sufficient
// (spec §4.4 step 3).
type cutValuation struct {
	participantInputs [][]int // slot -> ascending owned input indices
	participantChange []int   // slot -> change index, or -1
}

// NewModel builds the ILP instance from transaction data and the
// preprocessor's partial assignment.
func NewModel(inputs, outputs []int64, equalAmount int64, n int, unassignedInputs, unassignedChanges []int, fixed []FixedParticipant, maxFeeAbs, networkFee, dustThreshold int64) *Model {
	var bigM int64
	for _, v := range inputs {
		bigM += v
	}
	bigM++

	return &Model{
		N:                 n,
		Inputs:            inputs,
		Outputs:           outputs,
		EqualAmount:       equalAmount,
		Fixed:             fixed,
		UnassignedInputs:  unassignedInputs,
		UnassignedChanges: unassignedChanges,
		MaxFeeAbs:         maxFeeAbs,
		NetworkFee:        networkFee,
		DustThreshold:     dustThreshold,
		BigM:              bigM,
	}
}

// AddCut records a solved assignment's full ownership valuation so
// future solves exclude it. Mirrors spec §4.4 step 3 (add_constraint
// on the model before the next solve).
func (m *Model) AddCut(participantInputs [][]int, participantChange []int) {
	cut := cutValuation{
		participantInputs: cloneIntSlices(participantInputs),
		participantChange: append([]int(nil), participantChange...),
	}
	m.cuts = append(m.cuts, cut)
}

// NumCuts reports how many no-good cuts have been injected.
func (m *Model) NumCuts() int { return len(m.cuts) }

func (m *Model) excludedByCut(participantInputs [][]int, participantChange []int) bool {
	for _, cut := range m.cuts {
		if intSlicesEqual(cut.participantInputs, participantInputs) && intsEqual(cut.participantChange, participantChange) {
			return true
		}
	}
	return false
}

func cloneIntSlices(s [][]int) [][]int {
	out := make([][]int, len(s))
	for i, v := range s {
		out[i] = append([]int(nil), v...)
	}
	return out
}

func intSlicesEqual(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !intsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
