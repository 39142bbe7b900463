package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS loyalty_send_ledger (
	customer_id TEXT PRIMARY KEY,
	sent_at     TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps one row per customer in loyalty_send_ledger.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("creating ledger table: %w", err)
	}
	return nil
}

// Load reads every row. An empty table returns ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT customer_id, sent_at FROM loyalty_send_ledger`)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	records := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var sentAt time.Time
		if err := rows.Scan(&id, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		records[id] = sentAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger rows: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Save replaces the table contents with records in one transaction.
func (s *PostgresStore) Save(ctx context.Context, records map[string]time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM loyalty_send_ledger WHERE customer_id <> ALL($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("deleting stale ledger rows: %w", err)
	}

	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO loyalty_send_ledger (customer_id, sent_at) VALUES ($1, $2)
			ON CONFLICT (customer_id) DO UPDATE SET sent_at = EXCLUDED.sent_at`,
			id, records[id].UTC())
		if err != nil {
			return fmt.Errorf("upserting ledger row %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger: %w", err)
	}
	return nil
}
