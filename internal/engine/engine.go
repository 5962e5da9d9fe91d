// Package engine wires the transaction fetcher, the value-object
// builder, and the enumeration loop into a single run, the way
// teacher's cmd/engine/main.go wires the Bitcoin client, the
// database, and the websocket hub — but as a reusable component
// rather than inline in main.
package engine

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/jm-disentangle/internal/enumerate"
	"github.com/rawblock/jm-disentangle/internal/explorer"
	"github.com/rawblock/jm-disentangle/internal/ilp"
	"github.com/rawblock/jm-disentangle/internal/jmerr"
	"github.com/rawblock/jm-disentangle/internal/store"
	"github.com/rawblock/jm-disentangle/internal/txmodel"
	"github.com/rawblock/jm-disentangle/pkg/models"
)

// Config bounds one Analyze call.
type Config struct {
	MaxFeeRel     float64
	DustThreshold int64
	MaxSolutions  int
	TimePerSolve  time.Duration
	MemoryLimit   uint64 // bytes; 0 disables the guard
}

// Engine owns the long-lived collaborators (fetcher, optional store)
// an Analyze call is built from.
type Engine struct {
	Fetcher *explorer.Client
	Store   *store.Store // nil means memory-only
}

// New wires a fetcher (required) and an optional store.
func New(fetcher *explorer.Client, st *store.Store) *Engine {
	return &Engine{Fetcher: fetcher, Store: st}
}

// Analyze fetches txid, builds its Transaction, and enumerates every
// canonical participant assignment, invoking emit for each one as
// it's found. ctx is wrapped with a memory guard when cfg.MemoryLimit
// is set; cancelling ctx (e.g. on SIGINT) stops the run with partial
// results intact.
func (e *Engine) Analyze(ctx context.Context, txid string, cfg Config, emit enumerate.Sink) (*models.RunSummary, error) {
	correlationID := uuid.New().String()
	log.Printf("[Engine] run %s starting for txid %s", correlationID, txid)

	raw, err := e.Fetcher.FetchTransaction(txid)
	if err != nil {
		return nil, err
	}

	tx, err := txmodel.New(raw.Txid, raw.Inputs, raw.Outputs)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	var stopGuard func()
	if cfg.MemoryLimit > 0 {
		runCtx, stopGuard = withMemoryGuard(ctx, cfg.MemoryLimit, 500*time.Millisecond)
		defer stopGuard()
	}

	var runID int64
	hasStore := e.Store != nil
	if hasStore {
		runID, err = e.Store.StartRun(ctx, tx.Txid, tx.N, tx.EqualAmount, tx.NetworkFee(), cfg.MaxFeeRel, cfg.MaxSolutions)
		if err != nil {
			log.Printf("[Engine] warning: failed to record run start: %v", err)
			hasStore = false
		}
	}

	opts := enumerate.Options{
		MaxFeeRel:     cfg.MaxFeeRel,
		DustThreshold: cfg.DustThreshold,
		MaxSolutions:  cfg.MaxSolutions,
		TimePerSolve:  cfg.TimePerSolve,
		MemoryOK:      func() bool { return runCtx.Err() == nil },
	}

	wrappedEmit := emit
	if hasStore {
		wrappedEmit = func(sol models.Solution) {
			if err := e.Store.SaveSolution(ctx, runID, sol); err != nil {
				log.Printf("[Engine] warning: failed to persist solution %d: %v", sol.Index, err)
			}
			if emit != nil {
				emit(sol)
			}
		}
		opts.OnCut = func(sequence int, participantInputs [][]int, participantChange []int) {
			if err := e.Store.SaveCut(ctx, runID, sequence, participantInputs, participantChange); err != nil {
				log.Printf("[Engine] warning: failed to persist cut %d: %v", sequence, err)
			}
		}
	}

	summary, runErr := enumerate.Run(runCtx, tx, ilp.NewBranchAndBound(), opts, wrappedEmit)
	log.Printf("[Engine] run %s finished: status=%s solutions=%d solver_calls=%d", correlationID, summary.Status, len(summary.Solutions), summary.SolverCalls)

	if hasStore {
		if err := e.Store.FinishRun(ctx, runID, summary.Status, summary.SolverCalls); err != nil {
			log.Printf("[Engine] warning: failed to record run finish: %v", err)
		}
	}

	if cfg.MemoryLimit > 0 && runCtx.Err() != nil && ctx.Err() == nil {
		return summary, jmerr.New(jmerr.MemoryLimitExceeded, "engine.Analyze", runCtx.Err())
	}

	return summary, runErr
}

// withMemoryGuard returns a context that is cancelled once heap usage
// crosses limitBytes, sampled on interval (spec §5: the periodic
// measurement hook, external to the enumeration core).
func withMemoryGuard(parent context.Context, limitBytes uint64, interval time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		var mem runtime.MemStats
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&mem)
				if mem.HeapAlloc > limitBytes {
					log.Printf("[Engine] memory ceiling crossed: heap_alloc=%d limit=%d", mem.HeapAlloc, limitBytes)
					cancel()
					return
				}
			}
		}
	}()

	return ctx, func() {
		close(done)
		cancel()
	}
}
