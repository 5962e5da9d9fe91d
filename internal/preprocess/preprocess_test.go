package preprocess

import "testing"

func TestRun_FullyDeterministic(t *testing.T) {
	// 3-participant mix where every change output pairs with exactly
	// one input within fee tolerance — the preprocessor alone should
	// lock all three makers and leave nothing for the ILP.
	inputs := []int64{150000000, 200000000, 120000000}
	outputs := []int64{100000000, 100000000, 100000000}
	changeIndices := []int{3, 4, 5}
	fullOutputs := append(append([]int64{}, outputs...), 49970000, 99970000, 19970000)

	p := Run(inputs, fullOutputs, 100000000, changeIndices, 100000, 546)

	if len(p.Locks) != 3 {
		t.Fatalf("expected 3 locks, got %d", len(p.Locks))
	}
	if len(p.RemainingInputs) != 0 || len(p.RemainingChanges) != 0 {
		t.Errorf("expected nothing left for the ILP, got inputs=%v changes=%v", p.RemainingInputs, p.RemainingChanges)
	}
	seen := map[int]bool{}
	for _, l := range p.Locks {
		if len(l.Inputs) != 1 {
			t.Fatalf("expected single-input locks, got %v", l.Inputs)
		}
		seen[l.Inputs[0]] = true
		if l.Fee > 100000 || l.Fee < 0 {
			t.Errorf("lock fee %d outside tolerance", l.Fee)
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct inputs locked, got %d", len(seen))
	}
}

func TestRun_AmbiguousPairingLeftForILP(t *testing.T) {
	// Two inputs both qualify for the same single change output: no
	// unique tie exists, so neither should be locked by pass 1.
	inputs := []int64{150000000, 150000050}
	outputs := []int64{100000000, 100000000, 49990000}
	changeIndices := []int{2}

	p := Run(inputs, outputs, 100000000, changeIndices, 100000, 546)

	if len(p.Locks) != 0 {
		t.Fatalf("expected no locks for an ambiguous pairing, got %d", len(p.Locks))
	}
	if len(p.RemainingInputs) != 2 || len(p.RemainingChanges) != 1 {
		t.Errorf("expected both inputs and the change left unassigned, got inputs=%v changes=%v", p.RemainingInputs, p.RemainingChanges)
	}
}

func TestRun_IsolatedMakerNoChange(t *testing.T) {
	// An input within fee tolerance of the equal amount, with no
	// change output it could plausibly pair with, locks as a
	// no-change maker in pass 2.
	inputs := []int64{100050000}
	outputs := []int64{100000000}
	var changeIndices []int

	p := Run(inputs, outputs, 100000000, changeIndices, 100000, 546)

	if len(p.Locks) != 1 {
		t.Fatalf("expected 1 lock, got %d", len(p.Locks))
	}
	l := p.Locks[0]
	if l.ChangeIndex != nil {
		t.Errorf("expected no change for the isolated maker, got %v", *l.ChangeIndex)
	}
	if l.Fee != 50000 {
		t.Errorf("expected fee=50000, got %d", l.Fee)
	}
}

func TestRun_DustChangeNeverClaimed(t *testing.T) {
	// A change output below the dust threshold can never be paired in
	// pass 1, even if the arithmetic otherwise lines up; the input is
	// left unpaired by any change and falls through to pass 2, where it
	// locks as an isolated no-change maker instead.
	inputs := []int64{100000500}
	outputs := []int64{100000000, 500}
	changeIndices := []int{1}

	p := Run(inputs, outputs, 100000000, changeIndices, 100000, 546)

	if len(p.Locks) != 1 {
		t.Fatalf("expected 1 isolated-maker lock, got %d", len(p.Locks))
	}
	l := p.Locks[0]
	if l.ChangeIndex != nil {
		t.Errorf("expected the dust change to never be claimed, got change=%v", *l.ChangeIndex)
	}
	if len(p.RemainingChanges) != 1 || p.RemainingChanges[0] != 1 {
		t.Errorf("expected the dust change left unassigned for the ILP to reject, got %v", p.RemainingChanges)
	}
}
