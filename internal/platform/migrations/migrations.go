// Package migrations applies the schema required by the delivery layer. Each
// statement is idempotent so Apply can run on every boot.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS delivery_orders (
		id               TEXT PRIMARY KEY,
		delivery_address TEXT NOT NULL DEFAULT '',
		delivery_lat     DOUBLE PRECISION,
		delivery_lng     DOUBLE PRECISION,
		geocode_status   TEXT NOT NULL DEFAULT 'pending',
		geocode_error    TEXT,
		geocoded_at      TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS geocode_jobs (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL REFERENCES delivery_orders (id),
		status     TEXT NOT NULL DEFAULT 'pending',
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geocode_jobs_due ON geocode_jobs (updated_at) WHERE status IN ('pending', 'failed')`,
	`CREATE INDEX IF NOT EXISTS idx_geocode_jobs_order ON geocode_jobs (order_id)`,
	`CREATE TABLE IF NOT EXISTS admin_users (
		id     TEXT PRIMARY KEY,
		name   TEXT NOT NULL DEFAULT '',
		email  TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS admin_notifications (
		id           TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		category     TEXT NOT NULL DEFAULT 'system',
		title        TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL DEFAULT '',
		order_id     TEXT,
		read_at      TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_notifications_recipient ON admin_notifications (recipient_id, created_at DESC)`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
