package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentme-reservations/internal/domain/payments"
)

// Ledger is the payment_inbox table; the primary key on event_id makes Begin
// the dedupe gate.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Begin(ctx context.Context, entry payments.LedgerEntry) (bool, error) {
	now := entry.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	status := entry.Status
	if status == "" {
		status = payments.LedgerProcessing
	}
	res, err := l.db.ExecContext(ctx, `INSERT INTO payment_inbox (event_id, type, status, reservation_id, detail, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		entry.EventID, entry.Type, string(status), entry.ReservationID, entry.Detail, entry.Payload, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Ledger) Finish(ctx context.Context, eventID string, status payments.LedgerStatus, reservationID, detail string, at time.Time) error {
	res, err := l.db.ExecContext(ctx, `UPDATE payment_inbox
		SET status = $2, reservation_id = COALESCE(NULLIF($3, ''), reservation_id), detail = $4, updated_at = $5
		WHERE event_id = $1`,
		eventID, string(status), reservationID, detail, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return payments.ErrEntryNotFound
	}
	return nil
}

func (l *Ledger) ByEventID(ctx context.Context, eventID string) (*payments.LedgerEntry, error) {
	var (
		e      payments.LedgerEntry
		status string
	)
	err := l.db.QueryRowContext(ctx, `SELECT event_id, type, status, reservation_id, detail, payload, created_at, updated_at
		FROM payment_inbox WHERE event_id = $1`, eventID).
		Scan(&e.EventID, &e.Type, &status, &e.ReservationID, &e.Detail, &e.Payload, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payments.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Status = payments.LedgerStatus(status)
	return &e, nil
}

var _ payments.Ledger = (*Ledger)(nil)
