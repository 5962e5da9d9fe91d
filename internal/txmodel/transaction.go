// Package txmodel builds and validates the immutable CoinJoin
// transaction model the rest of the engine reasons about.
package txmodel

import (
	"fmt"

	"github.com/rawblock/jm-disentangle/internal/jmerr"
)

// Transaction is the value object described in spec §3. It is built
// once from a fetched RawTransaction and never mutated afterward.
type Transaction struct {
	Txid          string
	Inputs        []int64 // satoshis, I >= N
	Outputs       []int64 // satoshis
	EqualAmount   int64
	EqualIndices  []int // N output indices whose value == EqualAmount
	ChangeIndices []int // the remaining O-N output indices, in output order
	N             int
}

// New detects the equal-output denomination and validates the
// invariants from spec §3/§4.1. It never mutates inputs/outputs.
func New(txid string, inputs, outputs []int64) (*Transaction, error) {
	counts := make(map[int64]int, len(outputs))
	for _, v := range outputs {
		counts[v]++
	}

	var denom int64
	var best int
	for v, c := range counts {
		switch {
		case c > best:
			best, denom = c, v
		case c == best && v > denom:
			denom = v
		}
	}

	if best < 2 {
		return nil, jmerr.New(jmerr.InputError, "txmodel.New", fmt.Errorf("NotACoinJoin: no output value repeats >= 2 times"))
	}

	var sumIn, sumOut int64
	for _, v := range inputs {
		sumIn += v
	}
	for _, v := range outputs {
		sumOut += v
	}
	if sumIn < sumOut {
		return nil, jmerr.New(jmerr.InputError, "txmodel.New", fmt.Errorf("InconsistentBalance: sum(inputs)=%d < sum(outputs)=%d", sumIn, sumOut))
	}

	var equalIdx, changeIdx []int
	for i, v := range outputs {
		if v == denom {
			equalIdx = append(equalIdx, i)
		} else {
			changeIdx = append(changeIdx, i)
		}
	}

	t := &Transaction{
		Txid:          txid,
		Inputs:        append([]int64(nil), inputs...),
		Outputs:       append([]int64(nil), outputs...),
		EqualAmount:   denom,
		EqualIndices:  equalIdx,
		ChangeIndices: changeIdx,
		N:             best,
	}

	if t.N < 2 {
		return nil, jmerr.New(jmerr.InputError, "txmodel.New", fmt.Errorf("NotACoinJoin: N=%d < 2", t.N))
	}

	return t, nil
}

// SumInputs returns the total value of all inputs.
func (t *Transaction) SumInputs() int64 {
	var s int64
	for _, v := range t.Inputs {
		s += v
	}
	return s
}

// SumOutputs returns the total value of all outputs.
func (t *Transaction) SumOutputs() int64 {
	var s int64
	for _, v := range t.Outputs {
		s += v
	}
	return s
}

// NetworkFee is sum(inputs) - sum(outputs), always >= 0 for a valid
// Transaction (enforced at construction).
func (t *Transaction) NetworkFee() int64 {
	return t.SumInputs() - t.SumOutputs()
}

// MaxFeeAbs derives the per-equal-output absolute fee tolerance from
// the configured relative bound, floored to keep the downstream ILP
// strictly integer-linear (spec §9 Design Notes).
func (t *Transaction) MaxFeeAbs(maxFeeRel float64) int64 {
	if maxFeeRel < 0 {
		maxFeeRel = 0
	}
	return int64(maxFeeRel * float64(t.EqualAmount))
}

// NumInputs is len(Inputs).
func (t *Transaction) NumInputs() int { return len(t.Inputs) }

// NumOutputs is len(Outputs).
func (t *Transaction) NumOutputs() int { return len(t.Outputs) }
