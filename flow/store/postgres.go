package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a PostgreSQL-backed TimelineStore using a pgx connection pool.
//
// Designed for multi-process deployments. The schema mirrors the SQLite
// store; tables auto-migrate on first use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a PostgreSQL-backed store.
//
// Example:
//
//	st, err := store.NewPostgres(ctx, "postgres://autograph:secret@db:5432/autograph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Postgres) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT NOT NULL PRIMARY KEY,
			flow_name TEXT NOT NULL,
			backend TEXT NOT NULL,
			input TEXT,
			started_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.pool.Exec(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	entriesTable := `
		CREATE TABLE IF NOT EXISTS timeline_entries (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INT NOT NULL,
			node_id TEXT NOT NULL,
			node_kind TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			state TEXT NOT NULL,
			output TEXT,
			detail TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)
	`
	if _, err := s.pool.Exec(ctx, entriesTable); err != nil {
		return fmt.Errorf("failed to create timeline_entries table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)"); err != nil {
		return fmt.Errorf("failed to create idx_runs_started: %w", err)
	}
	return nil
}

// CreateRun registers a run record.
func (s *Postgres) CreateRun(ctx context.Context, run RunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, flow_name, backend, input, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.FlowName, run.Backend, nullableText(run.Input), run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AppendEntry appends a timeline entry, enforcing ascending sequence order
// inside a transaction.
func (s *Postgres) AppendEntry(ctx context.Context, e Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM runs WHERE id = $1", e.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var lastSeq *int
	if err := tx.QueryRow(ctx,
		"SELECT MAX(seq) FROM timeline_entries WHERE run_id = $1", e.RunID).Scan(&lastSeq); err != nil {
		return fmt.Errorf("failed to read last seq: %w", err)
	}
	if lastSeq != nil && e.Seq <= *lastSeq {
		return ErrOutOfOrder
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO timeline_entries (run_id, seq, node_id, node_kind, timestamp, duration_ms, state, output, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.RunID, e.Seq, e.NodeID, e.NodeKind, e.Timestamp.UTC(),
		e.DurationMS, e.State, nullableText(e.Output), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Entries returns the run's timeline in sequence order.
func (s *Postgres) Entries(ctx context.Context, runID string) ([]Entry, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT run_id, seq, node_id, node_kind, timestamp, duration_ms, state, output, detail
		 FROM timeline_entries WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			output *string
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &e.NodeID, &e.NodeKind, &e.Timestamp, &e.DurationMS, &e.State, &output, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if output != nil && *output != "" {
			e.Output = []byte(*output)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return out, nil
}

// Run returns the run record, or ErrNotFound.
func (s *Postgres) Run(ctx context.Context, runID string) (RunRecord, error) {
	var (
		run   RunRecord
		input *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, flow_name, backend, input, started_at FROM runs WHERE id = $1`, runID).
		Scan(&run.ID, &run.FlowName, &run.Backend, &input, &run.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	if input != nil && *input != "" {
		run.Input = []byte(*input)
	}
	return run, nil
}

// ListRuns returns all run records, oldest first.
func (s *Postgres) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, flow_name, backend, input, started_at FROM runs ORDER BY started_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			run   RunRecord
			input *string
		)
		if err := rows.Scan(&run.ID, &run.FlowName, &run.Backend, &input, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if input != nil && *input != "" {
			run.Input = []byte(*input)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database connection is alive.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
