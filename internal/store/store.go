// Package store persists runs, their emitted solutions, and their
// no-good cuts to PostgreSQL via pgx, the way the teacher's
// internal/db.PostgresStore persists heuristics results. Persistence
// is optional: callers that can't reach a database run in
// memory-only mode instead of failing the analysis.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/jm-disentangle/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens and pings a connection pool against connStr.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store.Connect: ping: %w", err)
	}
	log.Println("[Store] connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema applies the embedded schema, idempotently.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store.InitSchema: %w", err)
	}
	log.Println("[Store] schema initialized")
	return nil
}

// StartRun inserts the header row for one analyze invocation and
// returns its id for subsequent solution/cut inserts.
func (s *Store) StartRun(ctx context.Context, txid string, n int, equalAmount, networkFee int64, maxFeeRel float64, maxSolutions int) (int64, error) {
	const q = `
		INSERT INTO runs (txid, participants, equal_amount, network_fee, max_fee_rel, max_solutions, status, solver_calls)
		VALUES ($1, $2, $3, $4, $5, $6, 'running', 0)
		RETURNING id;
	`
	var id int64
	err := s.pool.QueryRow(ctx, q, txid, n, equalAmount, networkFee, maxFeeRel, maxSolutions).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store.StartRun: %w", err)
	}
	return id, nil
}

// FinishRun records the final status and solver-call count.
func (s *Store) FinishRun(ctx context.Context, runID int64, status string, solverCalls int) error {
	const q = `UPDATE runs SET status=$1, solver_calls=$2, finished_at=$3 WHERE id=$4`
	_, err := s.pool.Exec(ctx, q, status, solverCalls, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("store.FinishRun: %w", err)
	}
	return nil
}

// SaveSolution persists one emitted Solution under runID.
func (s *Store) SaveSolution(ctx context.Context, runID int64, sol models.Solution) error {
	participants, err := json.Marshal(sol.Participants)
	if err != nil {
		return fmt.Errorf("store.SaveSolution: marshal participants: %w", err)
	}

	const q = `
		INSERT INTO solutions (run_id, solution_index, taker_index, total_maker_fees, participants)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, solution_index) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, q, runID, sol.Index, sol.TakerIndex, sol.TotalMakerFees, participants)
	if err != nil {
		return fmt.Errorf("store.SaveSolution: %w", err)
	}
	return nil
}

// SaveCut persists one no-good cut for replay/debugging.
func (s *Store) SaveCut(ctx context.Context, runID int64, sequence int, participantInputs [][]int, participantChange []int) error {
	inputsJSON, err := json.Marshal(participantInputs)
	if err != nil {
		return fmt.Errorf("store.SaveCut: marshal inputs: %w", err)
	}
	changeJSON, err := json.Marshal(participantChange)
	if err != nil {
		return fmt.Errorf("store.SaveCut: marshal change: %w", err)
	}

	const q = `
		INSERT INTO cuts (run_id, sequence, participant_inputs, participant_change)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, sequence) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, q, runID, sequence, inputsJSON, changeJSON)
	if err != nil {
		return fmt.Errorf("store.SaveCut: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool, mirroring teacher's GetPool for
// subsystems that need raw access (e.g. the HTTP health check).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
