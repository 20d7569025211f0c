package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/runway"

	_ "modernc.org/sqlite"
)

// SQLiteResultStore keeps the ledger in a SQLite database.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore creates the schema if needed.
func NewSQLiteResultStore(db *sql.DB) (*SQLiteResultStore, error) {
	s := &SQLiteResultStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteResultStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS action_results (
		action_id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT '',
		suite_id TEXT NOT NULL DEFAULT '',
		office_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		receipt_id TEXT NOT NULL DEFAULT '',
		failure_code TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT '',
		data JSON,
		resolved_at TEXT NOT NULL,
		content_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_results_resolved_at ON action_results(resolved_at);
	CREATE INDEX IF NOT EXISTS idx_action_results_tenant ON action_results(suite_id, office_id);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate action_results: %w", err)
	}
	return nil
}

// Record inserts r. A second result for the same action id returns ErrDuplicate.
func (s *SQLiteResultStore) Record(ctx context.Context, r actionbus.Result) error {
	r = normalize(r)
	hash, err := ContentHash(r)
	if err != nil {
		return err
	}
	data, err := encodeData(r.Data)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO action_results (
		action_id, type, tier, suite_id, office_id, status, receipt_id, failure_code, error, stage, data, resolved_at, content_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(action_id) DO NOTHING`,
		r.ActionID, r.Type, string(r.Tier), r.SuiteID, r.OfficeID, string(r.Status), r.ReceiptID, r.FailureCode, r.Error,
		string(r.Stage), data, r.ResolvedAt.Format(timeLayout), hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.ActionID)
	}
	return nil
}

const sqliteSelect = `SELECT action_id, type, tier, suite_id, office_id, status, receipt_id, failure_code, error, stage, data, resolved_at, content_hash FROM action_results`

// Get returns the ledger entry for actionID.
func (s *SQLiteResultStore) Get(ctx context.Context, actionID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE action_id = ?`, actionID)
	e, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Resolved reports whether a result is recorded for actionID. It satisfies
// actionbus.ResolvedLookup.
func (s *SQLiteResultStore) Resolved(ctx context.Context, actionID string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM action_results WHERE action_id = ?)`, actionID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("lookup result %s: %w", actionID, err)
	}
	return found, nil
}

// List returns the entries matching q, most recent first.
func (s *SQLiteResultStore) List(ctx context.Context, q Query) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+`
		WHERE (? = '' OR suite_id = ?) AND (? = '' OR office_id = ?)
		ORDER BY resolved_at DESC, action_id LIMIT ?`,
		q.SuiteID, q.SuiteID, q.OfficeID, q.OfficeID, clampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (*Entry, error) {
	var (
		e          Entry
		tier       string
		status     string
		stage      string
		data       sql.NullString
		resolvedAt string
	)
	if err := sc.Scan(&e.Result.ActionID, &e.Result.Type, &tier, &e.Result.SuiteID, &e.Result.OfficeID, &status, &e.Result.ReceiptID,
		&e.Result.FailureCode, &e.Result.Error, &stage, &data, &resolvedAt, &e.ContentHash); err != nil {
		return nil, err
	}
	e.Result.Tier = capabilities.Tier(tier)
	e.Result.Status = actionbus.Status(status)
	e.Result.Stage = runway.State(stage)

	t, err := time.Parse(timeLayout, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("parse resolved_at %q: %w", resolvedAt, err)
	}
	e.Result.ResolvedAt = t.UTC()

	if data.Valid {
		if e.Result.Data, err = decodeData(&data.String); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
