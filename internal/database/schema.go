package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool used for DDL.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema statements, applied in order. Each is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS book_samples (
		session_id  TEXT    NOT NULL,
		symbol      TEXT    NOT NULL,
		update_id   BIGINT  NOT NULL,
		exchange_ts BIGINT,
		received_at BIGINT  NOT NULL,
		bid_price   BIGINT,
		bid_qty     BIGINT,
		ask_price   BIGINT,
		ask_qty     BIGINT,
		spread      BIGINT,
		bid_levels  INTEGER NOT NULL,
		ask_levels  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS book_samples_symbol_received_at_idx
		ON book_samples (symbol, received_at)`,
}

// EnsureSchema creates the recorder tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
