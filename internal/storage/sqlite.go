package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL UNIQUE,
	module TEXT NOT NULL,
	target TEXT NOT NULL,
	parameters TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	stderr TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	exit_code INTEGER,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	finished_at TEXT
);
`

const selectColumns = `SELECT execution_id, module, target, parameters, status, output, stderr, error,
	exit_code, duration_ms, created_at, finished_at FROM executions`

// SQLiteLedger persists records in a SQLite database file.
type SQLiteLedger struct {
	db       *sql.DB
	capacity int
}

// NewSQLiteLedger opens (creating if needed) the database at path. A positive
// capacity bounds the table the same way MemoryLedger does: the oldest
// terminal rows go first and pending rows are kept.
func NewSQLiteLedger(path string, capacity int) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// One connection serializes writers and keeps the pending->terminal
	// transition atomic without extra locking.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
		}
	}

	if capacity < 0 {
		capacity = 0
	}
	return &SQLiteLedger{db: db, capacity: capacity}, nil
}

func (l *SQLiteLedger) Append(ctx context.Context, rec Record) error {
	if rec.ExecutionID == "" {
		return fmt.Errorf("record has no execution id")
	}
	params, err := encodeParams(rec.Parameters)
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM executions WHERE execution_id = ?)", rec.ExecutionID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, rec.ExecutionID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (execution_id, module, target, parameters, status, output, stderr, error,
			exit_code, duration_ms, created_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.Module, rec.Target, params, string(rec.Status), rec.Output, rec.Stderr, rec.Error,
		nullInt(rec.ExitCode), rec.DurationMS, formatTime(rec.Timestamp), nullTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	if l.capacity > 0 {
		if err := l.evict(ctx, tx); err != nil {
			return fmt.Errorf("failed to apply retention: %w", err)
		}
	}

	return tx.Commit()
}

// evict deletes the oldest terminal rows above capacity. Pending rows are
// still owed their Update and stay.
func (l *SQLiteLedger) evict(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&count); err != nil {
		return err
	}
	excess := count - l.capacity
	if excess <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		"DELETE FROM executions WHERE seq IN (SELECT seq FROM executions WHERE status != ? ORDER BY seq ASC LIMIT ?)",
		string(StatusPending), excess,
	)
	return err
}

func (l *SQLiteLedger) Update(ctx context.Context, rec Record) error {
	params, err := encodeParams(rec.Parameters)
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM executions WHERE execution_id = ?", rec.ExecutionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ExecutionID)
	}
	if err != nil {
		return err
	}
	if err := checkUpdate(Record{Status: Status(status)}, rec); err != nil {
		return fmt.Errorf("%w: %s", err, rec.ExecutionID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE executions SET module = ?, target = ?, parameters = ?, status = ?, output = ?, stderr = ?,
			error = ?, exit_code = ?, duration_ms = ?, finished_at = ? WHERE execution_id = ?`,
		rec.Module, rec.Target, params, string(rec.Status), rec.Output, rec.Stderr,
		rec.Error, nullInt(rec.ExitCode), rec.DurationMS, nullTime(rec.FinishedAt), rec.ExecutionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	return tx.Commit()
}

func (l *SQLiteLedger) Get(ctx context.Context, id string) (Record, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE execution_id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

func (l *SQLiteLedger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+" ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec        Record
		params     string
		status     string
		exitCode   sql.NullInt64
		createdAt  string
		finishedAt sql.NullString
	)
	if err := s.Scan(&rec.ExecutionID, &rec.Module, &rec.Target, &params, &status, &rec.Output, &rec.Stderr,
		&rec.Error, &exitCode, &rec.DurationMS, &createdAt, &finishedAt); err != nil {
		return Record{}, err
	}

	rec.Status = Status(status)
	if err := json.Unmarshal([]byte(params), &rec.Parameters); err != nil {
		return Record{}, fmt.Errorf("corrupt parameters for %s: %w", rec.ExecutionID, err)
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		rec.ExitCode = &c
	}

	var err error
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Record{}, fmt.Errorf("corrupt timestamp for %s: %w", rec.ExecutionID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Record{}, fmt.Errorf("corrupt finished_at for %s: %w", rec.ExecutionID, err)
		}
		rec.FinishedAt = &t
	}
	return rec, nil
}

func encodeParams(params map[string]interface{}) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
