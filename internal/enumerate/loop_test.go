package enumerate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/jm-disentangle/internal/ilp"
	"github.com/rawblock/jm-disentangle/internal/txmodel"
	"github.com/rawblock/jm-disentangle/pkg/models"
)

func mustTx(t *testing.T, txid string, inputs, outputs []int64) *txmodel.Transaction {
	t.Helper()
	tx, err := txmodel.New(txid, inputs, outputs)
	if err != nil {
		t.Fatalf("unexpected error building transaction: %v", err)
	}
	return tx
}

func baseOpts() Options {
	return Options{
		DustThreshold: 546,
		TimePerSolve:  5 * time.Second,
	}
}

// TestRun_FullyDeterministic covers spec §8 seed scenario 1: the
// preprocessor alone fixes every participant (two exact-change makers
// plus one slightly-overpaying taker), so exactly one solution is
// emitted.
func TestRun_FullyDeterministic(t *testing.T) {
	inputs := []int64{149000000, 199000000, 119030000}
	outputs := []int64{100000000, 100000000, 100000000, 49000000, 99000000, 19000000}
	tx := mustTx(t, "deterministic", inputs, outputs)

	opts := baseOpts()
	opts.MaxFeeRel = 0.05

	var emitted []models.Solution
	summary, err := Run(context.Background(), tx, ilp.NewBranchAndBound(), opts, func(s models.Solution) {
		emitted = append(emitted, s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly 1 solution, got %d", len(emitted))
	}
	if summary.Status != "complete" {
		t.Errorf("expected status=complete, got %q", summary.Status)
	}
	validateSolution(t, emitted[0], tx)
}

// Shared shape for the ambiguity/cap/cancellation scenarios below:
// three inputs, two equal outputs and no change. Two distinct input
// partitions are both feasible (one of {x,y} stays alone as a maker,
// the other joins z as the taker), and a third partition (x and y
// together, z alone) is rejected for having two positive fees.
func ambiguousTx(t *testing.T) *txmodel.Transaction {
	inputs := []int64{90000000, 90000000, 200000000}
	outputs := []int64{100000000, 100000000}
	return mustTx(t, "ambiguous", inputs, outputs)
}

// TestRun_InfeasibleUnderTightFeeBound covers seed scenario 4: the
// same transaction, but with the fee tolerance tightened below what
// either candidate taker must actually pay over the network fee.
func TestRun_InfeasibleUnderTightFeeBound(t *testing.T) {
	tx := ambiguousTx(t)

	opts := baseOpts()
	opts.MaxFeeRel = 0

	summary, err := Run(context.Background(), tx, ilp.NewBranchAndBound(), opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Solutions) != 0 {
		t.Errorf("expected zero solutions, got %d", len(summary.Solutions))
	}
	if summary.Status != "no_solutions" {
		t.Errorf("expected status=no_solutions, got %q", summary.Status)
	}
}

// TestRun_MaxSolutionsCap covers seed scenario 6: with max_solutions=1
// the run stops after the first solution even though a second exists.
func TestRun_MaxSolutionsCap(t *testing.T) {
	tx := ambiguousTx(t)

	opts := baseOpts()
	opts.MaxFeeRel = 0.1
	opts.MaxSolutions = 1

	summary, err := Run(context.Background(), tx, ilp.NewBranchAndBound(), opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Solutions) != 1 {
		t.Fatalf("expected exactly 1 solution with max_solutions=1, got %d", len(summary.Solutions))
	}
	if summary.Status != "capped" {
		t.Errorf("expected status=capped, got %q", summary.Status)
	}
}

// TestRun_TakerAmbiguityEnumeratesBoth covers seed scenario 3: without
// a cap, both distinct solutions are found and they disagree on which
// participant is the taker.
func TestRun_TakerAmbiguityEnumeratesBoth(t *testing.T) {
	tx := ambiguousTx(t)

	opts := baseOpts()
	opts.MaxFeeRel = 0.1

	var emitted []models.Solution
	summary, err := Run(context.Background(), tx, ilp.NewBranchAndBound(), opts, func(s models.Solution) {
		emitted = append(emitted, s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected exactly 2 solutions, got %d", len(emitted))
	}
	if summary.Status != "complete" {
		t.Errorf("expected status=complete, got %q", summary.Status)
	}
	if emitted[0].TakerIndex == emitted[1].TakerIndex {
		t.Errorf("expected the two solutions to disagree on taker_index")
	}
	for _, s := range emitted {
		validateSolution(t, s, tx)
	}
}

// TestRun_CancelledMidRunPreservesEmitted covers seed scenario 5: the
// run is cancelled right after the first solution, and exactly that
// one solution is preserved.
func TestRun_CancelledMidRunPreservesEmitted(t *testing.T) {
	tx := ambiguousTx(t)

	opts := baseOpts()
	opts.MaxFeeRel = 0.1

	ctx, cancel := context.WithCancel(context.Background())
	var emitted []models.Solution
	summary, err := Run(ctx, tx, ilp.NewBranchAndBound(), opts, func(s models.Solution) {
		emitted = append(emitted, s)
		cancel() // cancel as soon as the first solution lands
	})
	if len(emitted) != 1 {
		t.Fatalf("expected exactly 1 solution before cancellation, got %d", len(emitted))
	}
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if summary.Status != "cancelled" {
		t.Errorf("expected status=cancelled, got %q", summary.Status)
	}
}

// TestRun_FiveParticipantChangeAmbiguity covers spec §8 seed scenario
// 2: a 5-participant mix where two change outputs are left unlocked
// by the preprocessor because no input pairs with either of them
// inside pass 1's [0, max_fee_abs] window, while inputs 2, 3 and 4
// can each own one in the model, and a dominant taker absorbs the
// rest of the network fee. At least two distinct, non-permutation solutions
// must surface, differing only in which free participant claims
// which change output.
func TestRun_FiveParticipantChangeAmbiguity(t *testing.T) {
	inputs := []int64{100000000, 100700000, 99700000, 99650000, 130000000}
	outputs := []int64{
		100000000, 100000000, 100000000, 100000000, 100000000, // 5 equal outputs
		700000, // pairs uniquely with input 1
		50000,  // free change, claimable by input 2, 3, or 4
		100000, // free change, claimable by input 2, 3, or 4
	}
	tx := mustTx(t, "fiveway", inputs, outputs)

	opts := baseOpts()
	opts.MaxFeeRel = 0.0025

	var emitted []models.Solution
	summary, err := Run(context.Background(), tx, ilp.NewBranchAndBound(), opts, func(s models.Solution) {
		emitted = append(emitted, s)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) < 2 {
		t.Fatalf("expected at least 2 distinct solutions, got %d", len(emitted))
	}
	if summary.Status != "complete" {
		t.Errorf("expected status=complete, got %q", summary.Status)
	}

	seen := map[string]bool{}
	for _, s := range emitted {
		validateSolution(t, s, tx)

		var key string
		for _, p := range s.Participants {
			if p.ChangeIndex != nil {
				key += fmt.Sprintf("%d:%d,", p.Inputs[0], *p.ChangeIndex)
			}
		}
		if seen[key] {
			t.Fatalf("the same change assignment was emitted twice: %s", key)
		}
		seen[key] = true
	}
}

// validateSolution checks the invariants from spec §8 that hold for
// every emitted solution regardless of scenario.
func validateSolution(t *testing.T, s models.Solution, tx *txmodel.Transaction) {
	t.Helper()

	seenInputs := make(map[int]bool)
	seenChanges := make(map[int]bool)
	takerCount := 0
	var sumFee int64

	for i, p := range s.Participants {
		for _, in := range p.Inputs {
			if seenInputs[in] {
				t.Errorf("input %d owned by more than one participant", in)
			}
			seenInputs[in] = true
		}
		if p.ChangeIndex != nil {
			if seenChanges[*p.ChangeIndex] {
				t.Errorf("change %d owned by more than one participant", *p.ChangeIndex)
			}
			seenChanges[*p.ChangeIndex] = true
		}
		if p.IsTaker {
			takerCount++
			if p.Fee <= 0 {
				t.Errorf("taker (slot %d) fee must be > 0, got %d", i, p.Fee)
			}
		} else if p.Fee > 0 {
			t.Errorf("maker (slot %d) fee must be <= 0, got %d", i, p.Fee)
		}
		sumFee += p.Fee

		if i > 0 {
			prevMin := minInt(s.Participants[i-1].Inputs)
			if minInt(p.Inputs) <= prevMin {
				t.Errorf("participants not in ascending canonical order at slot %d", i)
			}
		}
	}

	if takerCount != 1 {
		t.Errorf("expected exactly one taker, found %d", takerCount)
	}
	if len(seenInputs) != tx.NumInputs() {
		t.Errorf("expected all %d inputs assigned, got %d", tx.NumInputs(), len(seenInputs))
	}
	if sumFee != tx.NetworkFee() {
		t.Errorf("expected sum(fee)=%d, got %d", tx.NetworkFee(), sumFee)
	}
}

func minInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
