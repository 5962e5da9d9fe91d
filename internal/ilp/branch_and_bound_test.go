package ilp

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func solveOnce(t *testing.T, m *Model) *Result {
	t.Helper()
	r, err := NewBranchAndBound().Solve(context.Background(), m, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected solver error: %v", err)
	}
	return r
}

// TestSolve_TakerAmbiguity exercises spec §8 seed scenario 3: two
// inputs are both individually admissible as the taker, depending on
// which one ends up with the free change output. Exactly those two
// solutions should be reachable, differing only in taker_index.
func TestSolve_TakerAmbiguity(t *testing.T) {
	inputs := []int64{100050000, 130000000}
	outputs := []int64{30000000}

	m := NewModel(inputs, outputs, 100000000, 2,
		[]int{0, 1}, []int{0}, nil,
		30000000, 50000, 546)

	r1 := solveOnce(t, m)
	if r1.Status != StatusOptimal {
		t.Fatalf("expected a solution, got status %v", r1.Status)
	}
	if r1.Fee[r1.TakerIndex] <= 0 {
		t.Errorf("taker fee must be positive, got %d", r1.Fee[r1.TakerIndex])
	}
	m.AddCut(r1.ParticipantInputs, r1.ParticipantChange)

	r2 := solveOnce(t, m)
	if r2.Status != StatusOptimal {
		t.Fatalf("expected a second solution, got status %v", r2.Status)
	}
	if r2.TakerIndex == r1.TakerIndex {
		t.Errorf("expected the second solution's taker to differ from the first")
	}
	m.AddCut(r2.ParticipantInputs, r2.ParticipantChange)

	r3 := solveOnce(t, m)
	if r3.Status != StatusInfeasible {
		t.Errorf("expected the model exhausted after 2 solutions, got status %v", r3.Status)
	}
}

func TestSolve_InfeasibleUnderTightFeeBound(t *testing.T) {
	// Same shape as the ambiguity test, but the fee tolerance is
	// tightened below what either candidate taker actually pays.
	inputs := []int64{100050000, 130000000}
	outputs := []int64{30000000}

	m := NewModel(inputs, outputs, 100000000, 2,
		[]int{0, 1}, []int{0}, nil,
		0, 0, 546)

	r := solveOnce(t, m)
	if r.Status != StatusInfeasible {
		t.Errorf("expected infeasible under a fee tolerance too tight for either candidate, got status %v", r.Status)
	}
}

func TestSolve_FixedParticipantsNeverReopened(t *testing.T) {
	// A preprocessor lock for input 0 (maker, change at index 2) must
	// be honored exactly: no free input or free change may join that
	// slot, even when a join would otherwise be legal.
	inputs := []int64{100010000, 150000000}
	outputs := []int64{100000000, 100000000, 10000}

	fixed := []FixedParticipant{
		{InputIndex: 0, ChangeIndex: intPtr(2), Fee: 0},
	}
	m := NewModel(inputs, outputs, 100000000, 2,
		[]int{1}, nil, fixed,
		100000, 50000000, 546)

	r := solveOnce(t, m)
	if r.Status != StatusOptimal {
		t.Fatalf("expected a feasible solution, got status %v", r.Status)
	}
	if len(r.ParticipantInputs[0]) != 1 || r.ParticipantInputs[0][0] != 0 {
		t.Errorf("expected the fixed participant to keep owning only input 0, got %v", r.ParticipantInputs[0])
	}
	if r.ParticipantChange[0] != 2 {
		t.Errorf("expected the fixed participant to keep change index 2, got %d", r.ParticipantChange[0])
	}
}

func TestSolve_DustChangeRejected(t *testing.T) {
	inputs := []int64{100000500, 100000000}
	outputs := []int64{100000000, 100000000, 500}

	m := NewModel(inputs, outputs, 100000000, 2,
		[]int{0, 1}, []int{2}, nil,
		100000, 0, 546)

	r := solveOnce(t, m)
	if r.Status != StatusInfeasible {
		t.Errorf("expected infeasible since the only change output is dust, got status %v", r.Status)
	}
}

// TestSolve_MultipleFreeChangesNoDuplicateSlot exercises spec §8 seed
// scenario 2: two change outputs neither locked by the preprocessor
// can each land on either of two free participant slots. Both
// distinct assignments must surface across repeated solves, and no
// leaf may ever hand the same slot two changes or drop one from the
// fee total.
func TestSolve_MultipleFreeChangesNoDuplicateSlot(t *testing.T) {
	inputs := []int64{99900000, 130000000}
	outputs := []int64{50000, 100000}

	m := NewModel(inputs, outputs, 100000000, 2,
		[]int{0, 1}, []int{0, 1}, nil,
		250000, 29750000, 546)

	seen := map[string]bool{}
	var found int
	for i := 0; i < 8; i++ {
		r := solveOnce(t, m)
		if r.Status != StatusOptimal {
			break
		}

		owner := map[int]bool{}
		for _, c := range r.ParticipantChange {
			if c < 0 {
				continue
			}
			if owner[c] {
				t.Fatalf("change %d claimed by more than one slot: %v", c, r.ParticipantChange)
			}
			owner[c] = true
		}
		if len(owner) != len(outputs) {
			t.Fatalf("expected both change outputs assigned somewhere, got %v", r.ParticipantChange)
		}

		var sumFee int64
		for _, f := range r.Fee {
			sumFee += f
		}
		if sumFee != m.NetworkFee {
			t.Fatalf("expected sum(fee)=%d, got %d for %v", m.NetworkFee, sumFee, r.ParticipantChange)
		}

		key := fmt.Sprint(r.ParticipantChange)
		if seen[key] {
			t.Fatalf("solver re-emitted an already-cut valuation: %v", r.ParticipantChange)
		}
		seen[key] = true
		found++

		m.AddCut(r.ParticipantInputs, r.ParticipantChange)
	}

	if found < 2 {
		t.Fatalf("expected at least 2 distinct solutions, got %d", found)
	}
}

func intPtr(i int) *int { return &i }
