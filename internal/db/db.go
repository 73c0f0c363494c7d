package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations runs database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			description TEXT NOT NULL,
			modality TEXT NOT NULL DEFAULT '',
			value_cents BIGINT NOT NULL CHECK (value_cents > 0),
			people_count INT NOT NULL CHECK (people_count > 0),
			address TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			deletion_secret_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS payment_requests (
			txid TEXT PRIMARY KEY,
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			display_name TEXT NOT NULL,
			br_code TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			issued_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMPTZ NOT NULL,
			settled_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_payment_requests_pending
			ON payment_requests(expires_at) WHERE status = 'pending';

		CREATE TABLE IF NOT EXISTS participants (
			txid TEXT PRIMARY KEY,
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			display_name TEXT NOT NULL,
			confirmed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_participants_event_id ON participants(event_id, confirmed_at);
	`)
	return err
}

// isForeignKeyViolation reports whether err is a Postgres FK violation,
// which here means the referenced event no longer exists.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
