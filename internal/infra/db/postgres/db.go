package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects through the pgx database/sql driver and verifies the server
// answers.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(30 * time.Second)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY,
	host_id       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	unit_price    BIGINT NOT NULL,
	billing_unit  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reservations (
	id                  TEXT PRIMARY KEY,
	listing_id          TEXT NOT NULL,
	host_id             TEXT NOT NULL,
	renter_id           TEXT NOT NULL,
	start_date          DATE NOT NULL,
	end_date            DATE NOT NULL,
	status              TEXT NOT NULL,
	payment_status      TEXT,
	billing_unit        TEXT NOT NULL,
	units               INT NOT NULL,
	unit_price          BIGINT NOT NULL,
	total_amount        BIGINT NOT NULL,
	expires_at          TIMESTAMPTZ,
	paid_at             TIMESTAMPTZ,
	cancelled_at        TIMESTAMPTZ,
	checkout_session_id TEXT UNIQUE,
	payment_intent_id   TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	version             BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS reservations_listing_active ON reservations (listing_id, status, start_date);
CREATE INDEX IF NOT EXISTS reservations_stale ON reservations (status, expires_at);
CREATE TABLE IF NOT EXISTS payment_inbox (
	event_id        TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	status          TEXT NOT NULL,
	reservation_id  TEXT NOT NULL DEFAULT '',
	detail          TEXT NOT NULL DEFAULT '',
	payload         BYTEA,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	payload         BYTEA NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL,
	aggregate       TEXT NOT NULL,
	headers         JSONB NOT NULL DEFAULT '{}',
	state           TEXT NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	claimed_by      TEXT,
	claimed_at      TIMESTAMPTZ,
	sent_at         TIMESTAMPTZ,
	last_error      TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS outbox_due ON outbox (state, next_attempt_at);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
