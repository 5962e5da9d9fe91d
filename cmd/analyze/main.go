// Command analyze enumerates the candidate JoinMarket participant
// structures for a single transaction and writes them to disk.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rawblock/jm-disentangle/internal/engine"
	"github.com/rawblock/jm-disentangle/internal/enumerate"
	"github.com/rawblock/jm-disentangle/internal/explorer"
	"github.com/rawblock/jm-disentangle/internal/jmerr"
	"github.com/rawblock/jm-disentangle/internal/output"
	"github.com/rawblock/jm-disentangle/internal/store"
	"github.com/rawblock/jm-disentangle/pkg/models"
)

const (
	exitSuccess        = 0
	exitNoSolutions    = 1
	exitCancelled      = 2
	exitInputError     = 3
	exitSolverError    = 4
	exitMemoryLimit    = 5
	defaultDustSatoshi = 546
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		maxFeeRel      = pflag.Float64("max-fee-rel", 0.05, "max taker-to-maker fee per equal output, as a fraction of equal_amount")
		maxSolutions   = pflag.Int("max-solutions", 1000, "enumeration cap")
		outputPath     = pflag.String("output", "", "path to write the JSON run summary, an object whose \"solutions\" field holds the solution array (default solutions_<txid8>.json)")
		timeoutPerSolve = pflag.Int("timeout-per-solve", 60, "per-solve time budget in seconds")
		memoryLimitGB  = pflag.Float64("memory-limit-gb", 10, "heap ceiling in GiB before the run is aborted")
		explorerURL    = pflag.String("explorer-url", "", "block explorer base URL (default EXPLORER_BASE_URL env or blockstream.info)")
		databaseURL    = pflag.String("database-url", "", "optional Postgres connection string (default DATABASE_URL env)")
	)
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: analyze <txid> [flags]")
		return exitInputError
	}
	txid := pflag.Arg(0)

	if *maxFeeRel < 0 || *maxFeeRel > 1 {
		fmt.Fprintln(os.Stderr, "[Analyze] --max-fee-rel must be in [0,1]")
		return exitInputError
	}

	baseURL := *explorerURL
	if baseURL == "" {
		baseURL = os.Getenv("EXPLORER_BASE_URL")
	}
	fetcher := explorer.NewClient(explorer.Config{BaseURL: baseURL})

	connStr := *databaseURL
	if connStr == "" {
		connStr = os.Getenv("DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if connStr != "" {
		var err error
		st, err = store.Connect(ctx, connStr)
		if err != nil {
			log.Printf("[Analyze] warning: database unavailable, continuing in memory-only mode: %v", err)
			st = nil
		} else {
			defer st.Close()
			if err := st.InitSchema(ctx); err != nil {
				log.Printf("[Analyze] warning: schema init failed: %v", err)
			}
		}
	}

	eng := engine.New(fetcher, st)

	path := *outputPath
	if path == "" {
		tail := txid
		if len(tail) > 8 {
			tail = tail[:8]
		}
		path = fmt.Sprintf("solutions_%s.json", tail)
	}

	cfg := engine.Config{
		MaxFeeRel:     *maxFeeRel,
		DustThreshold: defaultDustSatoshi,
		MaxSolutions:  *maxSolutions,
		TimePerSolve:  time.Duration(*timeoutPerSolve) * time.Second,
		MemoryLimit:   uint64(*memoryLimitGB * (1 << 30)),
	}

	var emitted []models.Solution
	sink := enumerate.Sink(func(sol models.Solution) {
		emitted = append(emitted, sol)
		log.Printf("[Analyze] solution %d found (taker=%d, maker_fees=%d)", sol.Index, sol.TakerIndex, sol.TotalMakerFees)
		summary := &models.RunSummary{
			Txid:        sol.Txid,
			Solutions:   emitted,
			Status:      "partial",
		}
		if err := output.WriteSummary(path, summary); err != nil {
			log.Printf("[Analyze] warning: failed to write partial output: %v", err)
		}
	})

	summary, err := eng.Analyze(ctx, txid, cfg, sink)

	if summary != nil {
		if werr := output.WriteSummary(path, summary); werr != nil {
			log.Printf("[Analyze] failed to write final output: %v", werr)
		}
	}

	if err != nil {
		kind, ok := jmerr.KindOf(err)
		if !ok {
			log.Printf("[Analyze] unclassified error: %v", err)
			return exitSolverError
		}
		switch kind {
		case jmerr.Cancelled:
			log.Printf("[Analyze] cancelled with %d solution(s) saved to %s", len(emitted), path)
			return exitCancelled
		case jmerr.MemoryLimitExceeded:
			log.Printf("[Analyze] memory limit exceeded with %d solution(s) saved to %s", len(emitted), path)
			return exitMemoryLimit
		case jmerr.InputError:
			log.Printf("[Analyze] input error: %v", err)
			return exitInputError
		case jmerr.NetworkError:
			log.Printf("[Analyze] network error: %v", err)
			return exitInputError
		default:
			log.Printf("[Analyze] solver error: %v", err)
			return exitSolverError
		}
	}

	if summary == nil {
		return exitSolverError
	}

	if summary.Status == "no_solutions" {
		log.Printf("[Analyze] no feasible participant structure found for %s", txid)
		return exitNoSolutions
	}

	log.Printf("[Analyze] wrote %d solution(s) to %s", len(summary.Solutions), path)
	return exitSuccess
}
