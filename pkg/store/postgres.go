package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/runway"
)

// PostgresResultStore keeps the ledger in PostgreSQL. The caller registers
// the driver (lib/pq) and owns the *sql.DB.
type PostgresResultStore struct {
	db *sql.DB
}

func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

// Migrate creates the schema if needed.
func (s *PostgresResultStore) Migrate(ctx context.Context) error {
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
			data JSONB,
			resolved_at TIMESTAMPTZ NOT NULL,
			content_hash TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_action_results_tenant ON action_results (suite_id, office_id)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate action_results: %w", err)
	}
	return nil
}

// Record inserts r. A second result for the same action id returns ErrDuplicate.
func (s *PostgresResultStore) Record(ctx context.Context, r actionbus.Result) error {
	r = normalize(r)
	hash, err := ContentHash(r)
	if err != nil {
		return err
	}
	data, err := encodeData(r.Data)
	if err != nil {
		return err
	}

	query := `INSERT INTO action_results (action_id, type, tier, suite_id, office_id, status, receipt_id, failure_code, error, stage, data, resolved_at, content_hash) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ON CONFLICT (action_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		r.ActionID, r.Type, string(r.Tier), r.SuiteID, r.OfficeID, string(r.Status), r.ReceiptID, r.FailureCode, r.Error,
		string(r.Stage), data, r.ResolvedAt, hash,
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

const postgresSelect = `SELECT action_id, type, tier, suite_id, office_id, status, receipt_id, failure_code, error, stage, data, resolved_at, content_hash FROM action_results`

// Get returns the ledger entry for actionID.
func (s *PostgresResultStore) Get(ctx context.Context, actionID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, postgresSelect+` WHERE action_id = $1`, actionID)
	e, err := scanPostgres(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Resolved reports whether a result is recorded for actionID. It satisfies
// actionbus.ResolvedLookup.
func (s *PostgresResultStore) Resolved(ctx context.Context, actionID string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM action_results WHERE action_id = $1)`, actionID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("lookup result %s: %w", actionID, err)
	}
	return found, nil
}

// List returns the entries matching q, most recent first.
func (s *PostgresResultStore) List(ctx context.Context, q Query) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, postgresSelect+`
		WHERE ($1 = '' OR suite_id = $1) AND ($2 = '' OR office_id = $2)
		ORDER BY resolved_at DESC, action_id LIMIT $3`,
		q.SuiteID, q.OfficeID, clampLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		e, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanPostgres(sc scanner) (*Entry, error) {
	var (
		e      Entry
		tier   string
		status string
		stage  string
		data   sql.NullString
	)
	if err := sc.Scan(&e.Result.ActionID, &e.Result.Type, &tier, &e.Result.SuiteID, &e.Result.OfficeID, &status, &e.Result.ReceiptID,
		&e.Result.FailureCode, &e.Result.Error, &stage, &data, &e.Result.ResolvedAt, &e.ContentHash); err != nil {
		return nil, err
	}
	e.Result.Tier = capabilities.Tier(tier)
	e.Result.Status = actionbus.Status(status)
	e.Result.Stage = runway.State(stage)
	e.Result.ResolvedAt = e.Result.ResolvedAt.UTC()

	if data.Valid {
		var err error
		if e.Result.Data, err = decodeData(&data.String); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
