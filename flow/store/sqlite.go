package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a single-file TimelineStore.
//
// Designed for:
//   - Development and local deployments with zero setup
//   - Single-process servers that need timelines to survive restarts
//
// The store enables WAL mode so timeline reads never block the writer,
// and auto-migrates its schema on first use.
type SQLite struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLite opens (or creates) a SQLite-backed store at path.
//
// Use ":memory:" for an in-memory database in tests.
//
// Example:
//
//	st, err := store.NewSQLite("./autograph.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLite) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT NOT NULL PRIMARY KEY,
			flow_name TEXT NOT NULL,
			backend TEXT NOT NULL,
			input TEXT,
			started_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	entriesTable := `
		CREATE TABLE IF NOT EXISTS timeline_entries (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			node_kind TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			state TEXT NOT NULL,
			output TEXT,
			detail TEXT DEFAULT '',
			PRIMARY KEY (run_id, seq)
		)
	`
	if _, err := s.db.ExecContext(ctx, entriesTable); err != nil {
		return fmt.Errorf("failed to create timeline_entries table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_entries_run ON timeline_entries(run_id, seq)"); err != nil {
		return fmt.Errorf("failed to create idx_entries_run: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)"); err != nil {
		return fmt.Errorf("failed to create idx_runs_started: %w", err)
	}
	return nil
}

// CreateRun registers a run record.
func (s *SQLite) CreateRun(ctx context.Context, run RunRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	query := `
		INSERT INTO runs (id, flow_name, backend, input, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.FlowName, run.Backend, string(run.Input),
		run.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AppendEntry appends a timeline entry, enforcing ascending sequence order.
// The ordering check and the insert run in one transaction.
func (s *SQLite) AppendEntry(ctx context.Context, e Entry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", e.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var lastSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM timeline_entries WHERE run_id = ?", e.RunID).Scan(&lastSeq); err != nil {
		return fmt.Errorf("failed to read last seq: %w", err)
	}
	if lastSeq.Valid && e.Seq <= int(lastSeq.Int64) {
		return ErrOutOfOrder
	}

	query := `
		INSERT INTO timeline_entries (run_id, seq, node_id, node_kind, timestamp, duration_ms, state, output, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		e.RunID, e.Seq, e.NodeID, e.NodeKind,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.DurationMS, e.State, string(e.Output), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Entries returns the run's timeline in sequence order.
func (s *SQLite) Entries(ctx context.Context, runID string) ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, seq, node_id, node_kind, timestamp, duration_ms, state, output, detail
		FROM timeline_entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     string
			output sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &e.NodeID, &e.NodeKind, &ts, &e.DurationMS, &e.State, &output, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse entry timestamp: %w", err)
		}
		if output.Valid && output.String != "" {
			e.Output = []byte(output.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return out, nil
}

// Run returns the run record, or ErrNotFound.
func (s *SQLite) Run(ctx context.Context, runID string) (RunRecord, error) {
	if err := s.checkOpen(); err != nil {
		return RunRecord{}, err
	}

	query := `
		SELECT id, flow_name, backend, input, started_at
		FROM runs
		WHERE id = ?
	`
	var (
		run   RunRecord
		input sql.NullString
		ts    string
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.FlowName, &run.Backend, &input, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return RunRecord{}, fmt.Errorf("failed to parse run timestamp: %w", err)
	}
	if input.Valid && input.String != "" {
		run.Input = []byte(input.String)
	}
	return run, nil
}

// ListRuns returns all run records, oldest first.
func (s *SQLite) ListRuns(ctx context.Context) ([]RunRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, flow_name, backend, input, started_at
		FROM runs
		ORDER BY started_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var (
			run   RunRecord
			input sql.NullString
			ts    string
		)
		if err := rows.Scan(&run.ID, &run.FlowName, &run.Backend, &input, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
		}
		if input.Valid && input.String != "" {
			run.Input = []byte(input.String)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
