// Package enumerate drives the repeated solve/cut cycle from spec
// §4.4: preprocess once, then solve, canonicalize, emit, and cut until
// the solver proves infeasibility, a cap is reached, or the run is
// cancelled.
package enumerate

import (
	"context"
	"time"

	"github.com/rawblock/jm-disentangle/internal/ilp"
	"github.com/rawblock/jm-disentangle/internal/jmerr"
	"github.com/rawblock/jm-disentangle/internal/preprocess"
	"github.com/rawblock/jm-disentangle/internal/txmodel"
	"github.com/rawblock/jm-disentangle/pkg/models"
)

// Sink receives each accepted solution in discovery order. It is
// called synchronously on the loop's goroutine, so the next solve
// does not start until it returns.
type Sink func(models.Solution)

// CutSink receives each no-good cut as it's added to the model, in
// the same sequence order the cut was appended (0-based). It exists
// so a caller can persist cuts for replay/debugging without the loop
// itself depending on any storage layer.
type CutSink func(sequence int, participantInputs [][]int, participantChange []int)

// Options bounds a single enumeration run.
type Options struct {
	MaxFeeRel     float64
	DustThreshold int64
	MaxSolutions  int           // 0 means unbounded
	TimePerSolve  time.Duration

	// MemoryOK is polled once per iteration; it should return false
	// once the configured ceiling has been crossed (spec §5).
	MemoryOK func() bool

	// OnCut, if set, is invoked right after each no-good cut is added.
	OnCut CutSink
}

// Run builds the model from tx and opts, then enumerates every
// distinct canonical solution reachable through solver.
func Run(ctx context.Context, tx *txmodel.Transaction, solver ilp.Solver, opts Options, emit Sink) (*models.RunSummary, error) {
	maxFeeAbs := tx.MaxFeeAbs(opts.MaxFeeRel)
	networkFee := tx.NetworkFee()

	partial := preprocess.Run(tx.Inputs, tx.Outputs, tx.EqualAmount, tx.ChangeIndices, maxFeeAbs, opts.DustThreshold)

	fixed := make([]ilp.FixedParticipant, len(partial.Locks))
	for i, l := range partial.Locks {
		fixed[i] = ilp.FixedParticipant{
			InputIndex:  l.Inputs[0],
			ChangeIndex: l.ChangeIndex,
			Fee:         l.Fee,
		}
	}

	model := ilp.NewModel(tx.Inputs, tx.Outputs, tx.EqualAmount, tx.N,
		partial.RemainingInputs, partial.RemainingChanges, fixed,
		maxFeeAbs, networkFee, opts.DustThreshold)

	summary := &models.RunSummary{
		Txid:        tx.Txid,
		N:           tx.N,
		EqualAmount: tx.EqualAmount,
		NetworkFee:  networkFee,
	}

	for {
		if err := ctx.Err(); err != nil {
			summary.Status = "cancelled"
			return summary, jmerr.New(jmerr.Cancelled, "enumerate.Run", err)
		}
		if opts.MemoryOK != nil && !opts.MemoryOK() {
			summary.Status = "cancelled"
			return summary, jmerr.New(jmerr.MemoryLimitExceeded, "enumerate.Run", nil)
		}
		if opts.MaxSolutions > 0 && len(summary.Solutions) >= opts.MaxSolutions {
			summary.Status = "capped"
			return summary, nil
		}

		result, err := solver.Solve(ctx, model, opts.TimePerSolve)
		summary.SolverCalls++
		if err != nil {
			return summary, jmerr.New(jmerr.SolverError, "enumerate.Run", err)
		}

		switch result.Status {
		case ilp.StatusInfeasible:
			if len(summary.Solutions) == 0 {
				summary.Status = "no_solutions"
			} else {
				summary.Status = "complete"
			}
			return summary, nil
		case ilp.StatusTimeLimit:
			// The solver also stops on ctx cancellation; report that as
			// a cancel rather than as an exhausted per-solve budget.
			if err := ctx.Err(); err != nil {
				summary.Status = "cancelled"
				return summary, jmerr.New(jmerr.Cancelled, "enumerate.Run", err)
			}
			if len(summary.Solutions) == 0 {
				summary.Status = "no_solutions"
			} else {
				summary.Status = "capped"
			}
			return summary, nil
		}

		solution := canonicalize(tx, model, result, len(summary.Solutions))
		summary.Solutions = append(summary.Solutions, solution)
		if emit != nil {
			emit(solution)
		}
		cutSeq := model.NumCuts()
		model.AddCut(result.ParticipantInputs, result.ParticipantChange)
		if opts.OnCut != nil {
			opts.OnCut(cutSeq, result.ParticipantInputs, result.ParticipantChange)
		}
	}
}

func canonicalize(tx *txmodel.Transaction, model *ilp.Model, result *ilp.Result, index int) models.Solution {
	participants := make([]models.Participant, model.N)
	var totalMakerFees int64

	for slot := 0; slot < model.N; slot++ {
		var changeIdx *int
		if c := result.ParticipantChange[slot]; c >= 0 {
			cc := c
			changeIdx = &cc
		}

		isTaker := slot == result.TakerIndex
		if !isTaker {
			totalMakerFees += -result.Fee[slot]
		}

		participants[slot] = models.Participant{
			Inputs:      append([]int(nil), result.ParticipantInputs[slot]...),
			ChangeIndex: changeIdx,
			EqualAmount: tx.EqualAmount,
			Fee:         result.Fee[slot],
			IsTaker:     isTaker,
		}
	}

	return models.Solution{
		Index:          index,
		Txid:           tx.Txid,
		Participants:   participants,
		TakerIndex:     result.TakerIndex,
		TotalMakerFees: totalMakerFees,
		NetworkFee:     tx.NetworkFee(),
	}
}
