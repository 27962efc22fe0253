// Package audit persists redaction records for compliance reporting. Only
// detection metadata is stored, never the redacted values themselves.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ActionRedacted is the action recorded for every tokenized value.
const ActionRedacted = "REDACTED"

// Entry is one persisted detection record. PositionStart and PositionEnd
// are nil unless the sink runs at the detailed level.
type Entry struct {
	ID             int64
	RequestID      string
	Kind           string
	Token          string
	OriginalLength int
	Action         string
	PositionStart  *int
	PositionEnd    *int
	CreatedAt      time.Time
}

// Store is the SQLite-backed audit log.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the audit database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit database path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids lock contention
	// between the sink workers and the retention sweep.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set audit pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert persists one request's detections in a single transaction.
func (s *Store) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pii_audit (request_id, pii_type, token, original_length, action, position_start, position_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		action := e.Action
		if action == "" {
			action = ActionRedacted
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			e.RequestID, e.Kind, e.Token, e.OriginalLength, action,
			nullableInt(e.PositionStart), nullableInt(e.PositionEnd), createdAt.Unix())
		if err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteOlderThan removes records created before the cutoff and returns
// how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pii_audit WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired audit records: %w", err)
	}
	return res.RowsAffected()
}

// CountsByKind returns the number of records per detected kind created at
// or after since. A zero time counts everything.
func (s *Store) CountsByKind(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT pii_type, COUNT(*) FROM pii_audit WHERE created_at >= ? GROUP BY pii_type", since.Unix())
	if err != nil {
		return nil, fmt.Errorf("count audit records by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan audit count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// CountSince returns the number of records created at or after since.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pii_audit WHERE created_at >= ?", since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent audit records: %w", err)
	}
	return n, nil
}

// ByRequest returns the records persisted for one request, oldest first.
func (s *Store) ByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, pii_type, token, original_length, action, position_start, position_end, created_at
		FROM pii_audit WHERE request_id = ? ORDER BY id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var start, end sql.NullInt64
		var created int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &e.Token, &e.OriginalLength,
			&e.Action, &start, &end, &created); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if start.Valid {
			v := int(start.Int64)
			e.PositionStart = &v
		}
		if end.Valid {
			v := int(end.Int64)
			e.PositionEnd = &v
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
