// Package preprocess implements the deterministic greedy reducer from
// spec §4.2: it locks in unambiguous input/change pairings before the
// ILP builder ever sees the problem, the way the teacher engine's
// ssmp.go narrows a combinatorial search with cheap structural
// pre-filters (its "Hash-and-Modulus Pruning" pass) before falling
// back to the expensive solver lanes.
package preprocess

import "sort"

// Lock is one deduced participant fixed by the preprocessor. A Lock
// does not say whether its participant is a maker or the taker; the
// ILP leaf evaluation decides that from the signed fees (spec §4.2
// Pass 3).
type Lock struct {
	Inputs      []int // input indices owned, ascending
	ChangeIndex *int  // nil if this participant kept no change
	Fee         int64 // input minus equal amount minus change; always in [0, maxFeeAbs]
}

// Partial is the preprocessor's output: a set of fixed locks plus
// whatever inputs/changes remain free for the ILP.
type Partial struct {
	Locks            []Lock
	RemainingInputs  []int // ascending
	RemainingChanges []int // ascending
}

// Run executes passes 1-3 over the transaction's unassigned inputs
// and change outputs (the equal outputs never need assignment choices
// beyond "which participant holds one", which the ILP handles).
func Run(inputs []int64, outputs []int64, equalAmount int64, changeIndices []int, maxFeeAbs, dustThreshold int64) *Partial {
	remInputs := make(map[int]bool, len(inputs))
	for i := range inputs {
		remInputs[i] = true
	}
	remChanges := make(map[int]bool, len(changeIndices))
	for _, j := range changeIndices {
		remChanges[j] = true
	}

	var locks []Lock

	// Pass 1: single-input exact matches, fixed point.
	for {
		progressed := false

		candidates := make(map[int][]int) // change index -> qualifying input indices
		for j := range remChanges {
			// Dust change outputs can never be claimed by anyone (spec
			// §4.3 constraint 8); leave them for the ILP to reject.
			if outputs[j] < dustThreshold {
				continue
			}
			for i := range remInputs {
				fee := inputs[i] - equalAmount - outputs[j]
				if fee >= 0 && fee <= maxFeeAbs {
					candidates[j] = append(candidates[j], i)
				}
			}
		}

		// An input is "uniquely tied" to j only if j is the sole
		// change output it qualifies for among all remaining changes.
		inputQualifiesFor := make(map[int]int) // input -> count of changes it qualifies for
		for _, ins := range candidates {
			for _, i := range ins {
				inputQualifiesFor[i]++
			}
		}

		// Process changes in ascending order for deterministic output.
		orderedChanges := make([]int, 0, len(candidates))
		for j := range candidates {
			orderedChanges = append(orderedChanges, j)
		}
		sort.Ints(orderedChanges)

		for _, j := range orderedChanges {
			ins := candidates[j]
			if len(ins) != 1 {
				continue
			}
			i := ins[0]
			if inputQualifiesFor[i] != 1 {
				continue
			}
			jCopy := j
			locks = append(locks, Lock{
				Inputs:      []int{i},
				ChangeIndex: &jCopy,
				Fee:         inputs[i] - equalAmount - outputs[j],
			})
			delete(remInputs, i)
			delete(remChanges, j)
			progressed = true
		}

		if !progressed {
			break
		}
	}

	// Pass 2: isolated single-input makers with no change.
	for i := range remInputs {
		fee := inputs[i] - equalAmount
		if fee < 0 || fee > maxFeeAbs {
			continue
		}
		canPairWithAnyChange := false
		for j := range remChanges {
			if outputs[j] < dustThreshold {
				continue
			}
			f := inputs[i] - equalAmount - outputs[j]
			if f >= 0 && f <= maxFeeAbs {
				canPairWithAnyChange = true
				break
			}
		}
		if canPairWithAnyChange {
			continue
		}
		locks = append(locks, Lock{
			Inputs:      []int{i},
			ChangeIndex: nil,
			Fee:         fee,
		})
		delete(remInputs, i)
	}

	sort.Slice(locks, func(a, b int) bool {
		return locks[a].Inputs[0] < locks[b].Inputs[0]
	})

	p := &Partial{Locks: locks}
	for i := range remInputs {
		p.RemainingInputs = append(p.RemainingInputs, i)
	}
	for j := range remChanges {
		p.RemainingChanges = append(p.RemainingChanges, j)
	}
	sort.Ints(p.RemainingInputs)
	sort.Ints(p.RemainingChanges)

	return p
}
