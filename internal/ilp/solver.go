package ilp

import (
	"context"
	"time"
)

// Status mirrors the three outcomes a MILP solver call can have
// (spec §4.4 step 1 / §7 taxonomy).
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimeLimit
)

// Result is one solve's outcome, covering every participant slot
// (fixed and free alike) so callers never need to re-merge the two.
// Slots are numbered by ascending minimum owned input index, which
// falls out of the search order rather than from an explicit
// lexicographic constraint (spec §4.3 constraint 9; see
// branch_and_bound.go).
type Result struct {
	Status Status

	ParticipantInputs [][]int // len N; slot -> ascending owned input indices
	ParticipantChange []int   // len N; slot -> change output index, or -1

	TakerIndex int // -1 if Status != StatusOptimal
	Fee        []int64
}

// Solver is the abstraction spec §9 Design Notes calls for: bind a
// systems-language implementation to a native MILP library by
// satisfying this interface. BranchAndBound is the shipped
// implementation (see branch_and_bound.go).
type Solver interface {
	Solve(ctx context.Context, m *Model, timeLimit time.Duration) (*Result, error)
}
