package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	appoutbox "rentme-reservations/internal/app/outbox"
)

// outboxClaimTimeout releases records a crashed worker claimed but never settled.
const outboxClaimTimeout = 2 * time.Minute

// Outbox stores events in the outbox table. Claim takes one due row with
// FOR UPDATE SKIP LOCKED so several workers can relay in parallel.
type Outbox struct {
	db *sql.DB
}

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = o.db.ExecContext(ctx, `INSERT INTO outbox (id, name, payload, occurred_at, aggregate, headers, state, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'NEW', $7, $7)`,
		record.ID, record.Name, record.Payload, record.OccurredAt.UTC(), record.Aggregate, headers, now)
	return err
}

func (o *Outbox) Claim(ctx context.Context, workerID string, now time.Time) (*appoutbox.Pending, error) {
	now = now.UTC()
	var (
		p       appoutbox.Pending
		headers []byte
	)
	err := o.db.QueryRowContext(ctx, `UPDATE outbox SET state = 'CLAIMED', claimed_by = $1, claimed_at = $2
		WHERE id = (
			SELECT id FROM outbox
			WHERE (state IN ('NEW', 'FAILED') AND next_attempt_at <= $2)
				OR (state = 'CLAIMED' AND claimed_at <= $3)
			ORDER BY next_attempt_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, payload, occurred_at, aggregate, headers, attempts`,
		workerID, now, now.Add(-outboxClaimTimeout)).
		Scan(&p.ID, &p.Name, &p.Payload, &p.OccurredAt, &p.Aggregate, &headers, &p.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Headers = map[string]string{}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &p.Headers); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string, at time.Time) error {
	return o.exec(ctx, `UPDATE outbox SET state = 'SENT', sent_at = $2 WHERE id = $1`, id, at.UTC())
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return o.exec(ctx, `UPDATE outbox SET state = 'FAILED', next_attempt_at = $2, last_error = $3, attempts = attempts + 1 WHERE id = $1`,
		id, next.UTC(), errMsg)
}

func (o *Outbox) exec(ctx context.Context, query string, args ...any) error {
	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appoutbox.ErrNotFound
	}
	return nil
}

var _ appoutbox.Outbox = (*Outbox)(nil)
var _ appoutbox.Relay = (*Outbox)(nil)
