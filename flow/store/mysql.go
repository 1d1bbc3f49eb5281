package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQL is a MySQL-backed TimelineStore.
//
// Designed for multi-process deployments sharing one timeline database.
// The schema mirrors the SQLite store; tables auto-migrate on first use.
//
// The DSN must include parseTime=true so TIMESTAMP columns scan into
// time.Time, e.g. "user:pass@tcp(localhost:3306)/autograph?parseTime=true".
type MySQL struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQL opens a MySQL-backed store.
//
// Example:
//
//	st, err := store.NewMySQL("autograph:secret@tcp(db:3306)/autograph?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQL(dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQL{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQL) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			flow_name VARCHAR(255) NOT NULL,
			backend VARCHAR(32) NOT NULL,
			input MEDIUMTEXT,
			started_at TIMESTAMP(6) NOT NULL,
			INDEX idx_runs_started (started_at)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	entriesTable := `
		CREATE TABLE IF NOT EXISTS timeline_entries (
			run_id VARCHAR(64) NOT NULL,
			seq INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			node_kind VARCHAR(64) NOT NULL,
			timestamp TIMESTAMP(6) NOT NULL,
			duration_ms BIGINT NOT NULL,
			state VARCHAR(32) NOT NULL,
			output MEDIUMTEXT,
			detail TEXT,
			PRIMARY KEY (run_id, seq),
			CONSTRAINT fk_entries_run FOREIGN KEY (run_id) REFERENCES runs(id)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, entriesTable); err != nil {
		return fmt.Errorf("failed to create timeline_entries table: %w", err)
	}
	return nil
}

// CreateRun registers a run record.
func (s *MySQL) CreateRun(ctx context.Context, run RunRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	query := `
		INSERT INTO runs (id, flow_name, backend, input, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.FlowName, run.Backend, nullableText(run.Input), run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// AppendEntry appends a timeline entry, enforcing ascending sequence order
// inside a transaction.
func (s *MySQL) AppendEntry(ctx context.Context, e Entry) error {
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
		"SELECT MAX(seq) FROM timeline_entries WHERE run_id = ? FOR UPDATE", e.RunID).Scan(&lastSeq); err != nil {
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
		e.RunID, e.Seq, e.NodeID, e.NodeKind, e.Timestamp.UTC(),
		e.DurationMS, e.State, nullableText(e.Output), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Entries returns the run's timeline in sequence order.
func (s *MySQL) Entries(ctx context.Context, runID string) ([]Entry, error) {
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
			output sql.NullString
			detail sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &e.NodeID, &e.NodeKind, &e.Timestamp, &e.DurationMS, &e.State, &output, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if output.Valid && output.String != "" {
			e.Output = []byte(output.String)
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return out, nil
}

// Run returns the run record, or ErrNotFound.
func (s *MySQL) Run(ctx context.Context, runID string) (RunRecord, error) {
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
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.FlowName, &run.Backend, &input, &run.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	if input.Valid && input.String != "" {
		run.Input = []byte(input.String)
	}
	return run, nil
}

// ListRuns returns all run records, oldest first.
func (s *MySQL) ListRuns(ctx context.Context) ([]RunRecord, error) {
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
		)
		if err := rows.Scan(&run.ID, &run.FlowName, &run.Backend, &input, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
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
func (s *MySQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *MySQL) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *MySQL) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// nullableText maps empty payloads to SQL NULL.
func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
