package ilp

import (
	"context"
	"time"
)

// BranchAndBound is the native depth-first search behind the Solver
// interface. It walks inputs in ascending index order; each input
// either joins a slot already open or opens the next one, so every
// slot's first input is its minimum and slots come out in the spec's
// canonical ascending-min-input-index numbering (constraint 9) as a
// side effect of the branching order rather than through explicit
// lexicographic ordering variables.
type BranchAndBound struct{}

func NewBranchAndBound() *BranchAndBound { return &BranchAndBound{} }

// Solve searches for one feasible participant assignment not already
// excluded by a no-good cut. It returns StatusInfeasible once the
// search space is exhausted, or StatusTimeLimit if ctx or timeLimit
// expires first without having found one.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model, timeLimit time.Duration) (*Result, error) {
	changeBySlot := make([]int, m.N)
	for i := range changeBySlot {
		changeBySlot[i] = -1
	}

	s := &bbState{
		m:            m,
		fixedByInput: make(map[int]FixedParticipant, len(m.Fixed)),
		changeOwner:  make(map[int]int),
		changeBySlot: changeBySlot,
		fixedSlots:   make(map[int]bool, len(m.Fixed)),
		ctx:          ctx,
		deadline:     time.Now().Add(timeLimit),
	}
	for _, f := range m.Fixed {
		s.fixedByInput[f.InputIndex] = f
	}

	freeRemaining := make([]int, len(m.Inputs)+1)
	freeSet := make(map[int]bool, len(m.UnassignedInputs))
	for _, i := range m.UnassignedInputs {
		freeSet[i] = true
	}
	for i := len(m.Inputs) - 1; i >= 0; i-- {
		freeRemaining[i] = freeRemaining[i+1]
		if freeSet[i] {
			freeRemaining[i]++
		}
	}
	s.freeRemaining = freeRemaining

	result := s.assignInputs(0)
	if s.timedOut {
		return &Result{Status: StatusTimeLimit, TakerIndex: -1}, nil
	}
	if result == nil {
		return &Result{Status: StatusInfeasible, TakerIndex: -1}, nil
	}
	return result, nil
}

type bbState struct {
	m            *Model
	fixedByInput map[int]FixedParticipant
	ctx          context.Context
	deadline     time.Time

	// freeRemaining[i] is the count of unassigned inputs with index >= i.
	freeRemaining []int

	participantInputs [][]int     // slot -> owned input indices, in assignment order
	changeOwner       map[int]int // change idx -> slot, for every change assigned so far
	changeBySlot      []int       // slot -> change idx currently owned, or -1; enforces h[p] <= 1
	fixedSlots        map[int]bool // slot -> true if opened by a preprocessor lock; closed to free inputs

	nodes    int
	timedOut bool
}

func (s *bbState) budgetExceeded() bool {
	s.nodes++
	if s.nodes%512 == 0 && !s.timedOut {
		if s.ctx.Err() != nil || time.Now().After(s.deadline) {
			s.timedOut = true
		}
	}
	return s.timedOut
}

// assignInputs processes global input index idx (0..len(Inputs)-1) in
// ascending order. Fixed inputs deterministically open their own slot;
// free inputs branch over joining an already-open slot or opening the
// next one.
func (s *bbState) assignInputs(idx int) *Result {
	if s.budgetExceeded() {
		return nil
	}

	if idx == len(s.m.Inputs) {
		if len(s.participantInputs) != s.m.N {
			return nil
		}
		return s.assignChanges(0)
	}

	if fixed, ok := s.fixedByInput[idx]; ok {
		slot := len(s.participantInputs)
		s.participantInputs = append(s.participantInputs, []int{idx})
		s.fixedSlots[slot] = true
		changeSet := false
		if fixed.ChangeIndex != nil {
			s.changeOwner[*fixed.ChangeIndex] = slot
			changeSet = true
		}

		result := s.assignInputs(idx + 1)

		if fixed.ChangeIndex != nil && changeSet {
			delete(s.changeOwner, *fixed.ChangeIndex)
		}
		delete(s.fixedSlots, slot)
		s.participantInputs = s.participantInputs[:slot]

		return result
	}

	// Free input. Prune: the slots still needed can't exceed the free
	// inputs left to open them with.
	openCount := len(s.participantInputs)
	if s.m.N-openCount > s.freeRemaining[idx] {
		return nil
	}

	maxSlot := openCount
	if maxSlot > s.m.N-1 {
		maxSlot = s.m.N - 1
	}
	for slot := 0; slot <= maxSlot; slot++ {
		opened := slot == openCount
		// A slot a preprocessor lock already opened is a constant, not
		// a branching variable (spec §9 Open Questions): free inputs
		// may only open new slots or join other free-built ones.
		if !opened && s.fixedSlots[slot] {
			continue
		}
		if opened {
			s.participantInputs = append(s.participantInputs, []int{idx})
		} else {
			s.participantInputs[slot] = append(s.participantInputs[slot], idx)
		}

		result := s.assignInputs(idx + 1)

		if opened {
			s.participantInputs = s.participantInputs[:slot]
		} else {
			last := len(s.participantInputs[slot]) - 1
			s.participantInputs[slot] = s.participantInputs[slot][:last]
		}

		if result != nil || s.timedOut {
			return result
		}
	}

	return nil
}

// assignChanges processes m.UnassignedChanges[pos:] in ascending
// order, branching each one over every participant slot. A change
// output below the dust threshold can never be claimed (spec §4.3
// constraint 8), which makes the whole branch a dead end. A slot that
// already owns a change is skipped too: spec §4.3 constraint 2 caps
// h[p] at 1, so at most one change output may land on any participant.
func (s *bbState) assignChanges(pos int) *Result {
	if s.budgetExceeded() {
		return nil
	}

	changes := s.m.UnassignedChanges
	if pos == len(changes) {
		return s.evaluateLeaf()
	}

	j := changes[pos]
	if s.m.Outputs[j] < s.m.DustThreshold {
		return nil
	}

	for slot := 0; slot < s.m.N; slot++ {
		// A fixed participant's change ownership was already decided
		// by the preprocessor lock; an unassigned change can't land there.
		if s.fixedSlots[slot] {
			continue
		}
		// At most one change per participant (h[p] <= 1).
		if s.changeBySlot[slot] != -1 {
			continue
		}
		s.changeOwner[j] = slot
		s.changeBySlot[slot] = j

		result := s.assignChanges(pos + 1)

		s.changeBySlot[slot] = -1
		if result != nil || s.timedOut {
			return result
		}
	}
	delete(s.changeOwner, j)

	return nil
}

// evaluateLeaf checks value balance, the single-taker constraint, the
// taker fee bound, and the no-good cuts once every input and change
// has an owner.
func (s *bbState) evaluateLeaf() *Result {
	n := s.m.N
	participantChange := make([]int, n)
	for i := range participantChange {
		participantChange[i] = -1
	}
	for j, slot := range s.changeOwner {
		participantChange[slot] = j
	}

	fee := make([]int64, n)
	for slot, ins := range s.participantInputs {
		var contributed int64
		for _, i := range ins {
			contributed += s.m.Inputs[i]
		}
		var changeValue int64
		if j := participantChange[slot]; j >= 0 {
			changeValue = s.m.Outputs[j]
		}
		fee[slot] = contributed - s.m.EqualAmount - changeValue
	}

	taker := -1
	var sumFee int64
	for slot, f := range fee {
		sumFee += f
		if f > 0 {
			if taker != -1 {
				return nil
			}
			taker = slot
		}
	}
	if taker == -1 {
		return nil
	}
	if fee[taker] > s.m.MaxFeeAbs*int64(n-1)+s.m.NetworkFee {
		return nil
	}
	// Global balance check (spec §4.3 constraint 7 / §8 invariant 5).
	// Redundant when every input and change output has exactly one
	// owner, but it backstops any ownership bookkeeping bug that would
	// otherwise let a leaf with a vanished or double-counted change
	// output slip through as a solution.
	if sumFee != s.m.NetworkFee {
		return nil
	}

	participantInputsCopy := cloneIntSlices(s.participantInputs)
	if s.m.excludedByCut(participantInputsCopy, participantChange) {
		return nil
	}

	// The enumeration loop adds the no-good cut once it has accepted
	// and emitted this solution (spec §4.4 step 3), not here: a leaf
	// the caller discards for other reasons must stay re-discoverable.
	return &Result{
		Status:            StatusOptimal,
		ParticipantInputs: participantInputsCopy,
		ParticipantChange: participantChange,
		TakerIndex:        taker,
		Fee:               fee,
	}
}
