package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

var errListingMismatch = errors.New("postgres: built reservation belongs to another listing")

const reservationColumns = `id, listing_id, host_id, renter_id, start_date, end_date, status, payment_status,
	billing_unit, units, unit_price, total_amount, expires_at, paid_at, cancelled_at,
	checkout_session_id, payment_intent_id, created_at, updated_at, version`

const (
	activeStatuses = `status IN ('pending', 'confirmed')`
	// Rows written before the unpaid enum carry NULL, '' or 'pending'.
	unpaidPredicate = `COALESCE(payment_status, '') IN ('unpaid', 'pending', '')`
	stalePredicate  = `status = 'pending' AND ` + unpaidPredicate + `
	AND paid_at IS NULL AND COALESCE(payment_intent_id, '') = ''
	AND expires_at IS NOT NULL AND expires_at < $1`
	lockListing = `SELECT pg_advisory_xact_lock(hashtext($1))`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// ReservationRepository serializes writes per listing with a transaction
// scoped advisory lock keyed by the listing id.
type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func scanReservation(row rowScanner) (*reservation.Reservation, error) {
	var (
		id, listingID, hostID, renterID string
		start, end                      time.Time
		status, unit, intent            string
		payment, session                sql.NullString
		units                           int
		unitPrice, total, version       int64
		expiresAt, paidAt, cancelledAt  sql.NullTime
		createdAt, updatedAt            time.Time
	)
	if err := row.Scan(&id, &listingID, &hostID, &renterID, &start, &end, &status, &payment,
		&unit, &units, &unitPrice, &total, &expiresAt, &paidAt, &cancelledAt,
		&session, &intent, &createdAt, &updatedAt, &version); err != nil {
		return nil, err
	}
	st, err := reservation.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	ps, err := reservation.ParsePaymentStatus(payment.String)
	if err != nil {
		return nil, err
	}
	return &reservation.Reservation{
		ID:                reservation.ID(id),
		ListingID:         domainlistings.ListingID(listingID),
		HostID:            domainlistings.HostID(hostID),
		RenterID:          renterID,
		Range:             domainrange.DateRange{Start: domainrange.Day(start), End: domainrange.Day(end)},
		Status:            st,
		PaymentStatus:     ps,
		BillingUnit:       domainlistings.BillingUnit(unit),
		Units:             units,
		UnitPrice:         unitPrice,
		TotalAmount:       total,
		ExpiresAt:         timePtr(expiresAt),
		PaidAt:            timePtr(paidAt),
		CancelledAt:       timePtr(cancelledAt),
		CheckoutSessionID: session.String,
		PaymentIntentID:   intent,
		CreatedAt:         createdAt.UTC(),
		UpdatedAt:         updatedAt.UTC(),
		Version:           version,
	}, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryReservations(ctx context.Context, q querier, query string, args ...any) ([]*reservation.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*reservation.Reservation, 0)
	for rows.Next() {
		item, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *ReservationRepository) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, string(id))
}

func (r *ReservationRepository) ByCheckoutSession(ctx context.Context, sessionID string) (*reservation.Reservation, error) {
	if sessionID == "" {
		return nil, reservation.ErrNotFound
	}
	return r.one(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE checkout_session_id = $1`, sessionID)
}

func (r *ReservationRepository) one(ctx context.Context, query string, args ...any) (*reservation.Reservation, error) {
	item, err := scanReservation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reservation.ErrNotFound
	}
	return item, err
}

func (r *ReservationRepository) ListActiveByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*reservation.Reservation, error) {
	return queryReservations(ctx, r.db,
		`SELECT `+reservationColumns+` FROM reservations WHERE listing_id = $1 AND `+activeStatuses+` ORDER BY start_date`,
		string(listingID))
}

func overlapping(ctx context.Context, q querier, listingID domainlistings.ListingID, rng domainrange.DateRange) ([]*reservation.Reservation, error) {
	return queryReservations(ctx, q,
		`SELECT `+reservationColumns+` FROM reservations WHERE listing_id = $1 AND `+activeStatuses+` AND start_date < $3 AND end_date > $2`,
		string(listingID), rng.Start, rng.End)
}

func (r *ReservationRepository) Admit(ctx context.Context, req reservation.AdmitRequest) (*reservation.Reservation, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, reservation.ErrInvalidRange
	}
	var created *reservation.Reservation
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockListing, string(req.ListingID)); err != nil {
			return err
		}
		existing, err := overlapping(ctx, tx, req.ListingID, req.Range)
		if err != nil {
			return err
		}
		verdict := domainavailability.Check(existing, req.Range, req.Now)
		switch verdict.Reason {
		case domainavailability.ReasonNone:
		case domainavailability.ReasonInvalidRange:
			return reservation.ErrInvalidRange
		default:
			return domainavailability.NewConflictError(verdict)
		}
		item, err := req.Build()
		if err != nil {
			return err
		}
		if item.ListingID != req.ListingID {
			return errListingMismatch
		}
		if err := insertReservation(ctx, tx, item); err != nil {
			return fmt.Errorf("postgres: insert reservation: %w", err)
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, item *reservation.Reservation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		string(item.ID), string(item.ListingID), string(item.HostID), item.RenterID,
		item.Range.Start, item.Range.End, string(item.Status), string(item.PaymentStatus),
		string(item.BillingUnit), item.Units, item.UnitPrice, item.TotalAmount,
		nullTime(item.ExpiresAt), nullTime(item.PaidAt), nullTime(item.CancelledAt),
		nullString(item.CheckoutSessionID), item.PaymentIntentID,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(), item.Version)
	return err
}

func (r *ReservationRepository) MarkConfirmed(ctx context.Context, id reservation.ID, paymentIntentID string, at time.Time) (bool, error) {
	current, err := r.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	applied := false
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockListing, string(current.ListingID)); err != nil {
			return err
		}
		item, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, string(id)))
		if err != nil {
			return err
		}
		if !item.Confirmable() {
			return nil
		}
		if !item.Blocking(at) {
			others, err := overlapping(ctx, tx, item.ListingID, item.Range)
			if err != nil {
				return err
			}
			for _, other := range others {
				if other.ID != item.ID && other.Blocking(at) {
					return nil
				}
			}
		}
		res, err := tx.ExecContext(ctx, `UPDATE reservations
			SET status = 'confirmed', payment_status = 'paid', paid_at = $2, expires_at = NULL,
				payment_intent_id = COALESCE(NULLIF($3, ''), payment_intent_id),
				updated_at = $2, version = version + 1
			WHERE id = $1 AND status = 'pending' AND `+unpaidPredicate,
			string(id), at.UTC(), paymentIntentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		applied = n == 1
		return nil
	})
	return applied, err
}

// ExpireStale lists candidates then flips each with an update guarded by the
// sweep predicate, so a row confirmed in between is left alone.
func (r *ReservationRepository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	now = now.UTC()
	candidates, err := queryReservations(ctx, r.db,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+stalePredicate+` ORDER BY expires_at LIMIT $2`,
		now, lim)
	if err != nil {
		return nil, err
	}
	out := make([]*reservation.Reservation, 0, len(candidates))
	for _, item := range candidates {
		if err := item.Expire(now); err != nil {
			continue
		}
		res, err := r.db.ExecContext(ctx, `UPDATE reservations
			SET status = $3, payment_status = $4, cancelled_at = $5, updated_at = $5, version = version + 1
			WHERE id = $2 AND `+stalePredicate,
			now, string(item.ID), string(item.Status), string(item.PaymentStatus), item.CancelledAt.UTC())
		if err != nil {
			return out, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return out, err
		} else if n == 1 {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *ReservationRepository) AttachCheckout(ctx context.Context, id reservation.ID, sessionID, paymentIntentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE reservations
		SET checkout_session_id = $2, payment_intent_id = COALESCE(NULLIF($3, ''), payment_intent_id),
			updated_at = $4, version = version + 1
		WHERE id = $1 AND status = 'pending' AND `+unpaidPredicate,
		string(id), sessionID, paymentIntentID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.ByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
