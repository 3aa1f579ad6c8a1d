package reservation

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/shared/daterange"
	"rentme-reservations/internal/domain/shared/events"
)

// DefaultHoldDuration is how long a pending reservation blocks its dates
// while waiting for payment.
const DefaultHoldDuration = 15 * time.Minute

var (
	ErrNotFound        = errors.New("reservation: not found")
	ErrSelfBooking     = errors.New("reservation: host cannot book own listing")
	ErrInvalidRange    = daterange.ErrInvalidRange
	ErrRenterRequired  = errors.New("reservation: renter id required")
	ErrHoldExpired     = errors.New("reservation: hold has expired")
	ErrNotRenter       = errors.New("reservation: user is not the renter")
	ErrPaymentInFlight = errors.New("reservation: checkout already started")
	ErrNotParticipant  = errors.New("reservation: user is neither renter nor host")
)

type ID string

type Reservation struct {
	ID                ID
	ListingID         listings.ListingID
	HostID            listings.HostID
	RenterID          string
	Range             daterange.DateRange
	Status            Status
	PaymentStatus     PaymentStatus
	BillingUnit       listings.BillingUnit
	Units             int
	UnitPrice         int64
	TotalAmount       int64
	ExpiresAt         *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	CheckoutSessionID string
	PaymentIntentID   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
	events.EventRecorder
}

type CreateParams struct {
	ID           ID
	Listing      *listings.Listing
	RenterID     string
	Range        daterange.DateRange
	Quote        pricing.Quote
	HoldDuration time.Duration
	Now          time.Time
}

// New builds a pending, unpaid reservation whose hold lapses at Now+HoldDuration.
func New(params CreateParams) (*Reservation, error) {
	if params.Listing == nil {
		return nil, listings.ErrListingNotFound
	}
	renter := strings.TrimSpace(params.RenterID)
	if renter == "" {
		return nil, ErrRenterRequired
	}
	if params.Listing.OwnedBy(renter) {
		return nil, ErrSelfBooking
	}
	if err := params.Range.Validate(); err != nil {
		return nil, ErrInvalidRange
	}
	if params.Quote.Total <= 0 {
		return nil, pricing.ErrInvalidTotal
	}
	hold := params.HoldDuration
	if hold <= 0 {
		hold = DefaultHoldDuration
	}
	now := params.Now.UTC()
	expires := now.Add(hold)
	r := &Reservation{
		ID:            params.ID,
		ListingID:     params.Listing.ID,
		HostID:        params.Listing.Host,
		RenterID:      renter,
		Range:         params.Range,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		BillingUnit:   params.Quote.Unit,
		Units:         params.Quote.Units,
		UnitPrice:     params.Quote.UnitPrice,
		TotalAmount:   params.Quote.Total,
		ExpiresAt:     &expires,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.Record(Requested{
		ReservationID: r.ID,
		ListingID:     r.ListingID,
		RenterID:      r.RenterID,
		Range:         r.Range,
		TotalAmount:   r.TotalAmount,
		ExpiresAt:     expires,
		At:            now,
	})
	return r, nil
}

func (r *Reservation) State() State {
	return State{Status: r.Status, Payment: r.PaymentStatus}
}

// Blocking reports whether r currently prevents overlapping bookings.
// A pending row without expiry is legacy data and blocks.
func (r *Reservation) Blocking(now time.Time) bool {
	switch r.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return r.ExpiresAt == nil || r.ExpiresAt.After(now)
	}
	return false
}

// OnHold reports a pending reservation whose hold has not lapsed.
func (r *Reservation) OnHold(now time.Time) bool {
	return r.Status == StatusPending && r.Blocking(now)
}

// HoldRemaining is the time left on a live hold, zero otherwise.
func (r *Reservation) HoldRemaining(now time.Time) time.Duration {
	if r.Status != StatusPending || r.ExpiresAt == nil || !r.ExpiresAt.After(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

func (r *Reservation) IsPaid() bool {
	return r.PaymentStatus == PaymentPaid || r.Status == StatusConfirmed
}

// Expirable is the sweep predicate: pending, unpaid, no payment in flight and
// the hold lapsed strictly before now.
func (r *Reservation) Expirable(now time.Time) bool {
	return r.Status == StatusPending &&
		r.PaymentStatus == PaymentUnpaid &&
		r.PaidAt == nil &&
		r.PaymentIntentID == "" &&
		r.ExpiresAt != nil &&
		r.ExpiresAt.Before(now)
}

// Confirmable is the payment predicate: pending and not yet paid.
func (r *Reservation) Confirmable() bool {
	return r.State() == StateHeld
}

func (r *Reservation) Confirm(paymentIntentID string, now time.Time) error {
	next, err := r.State().Next(TransitionConfirm)
	if err != nil {
		return err
	}
	paidAt := now.UTC()
	r.Status, r.PaymentStatus = next.Status, next.Payment
	r.PaidAt = &paidAt
	r.ExpiresAt = nil
	if paymentIntentID != "" {
		r.PaymentIntentID = paymentIntentID
	}
	r.UpdatedAt = paidAt
	r.Record(Confirmed{
		ReservationID:   r.ID,
		ListingID:       r.ListingID,
		Range:           r.Range,
		TotalAmount:     r.TotalAmount,
		PaymentIntentID: r.PaymentIntentID,
		At:              paidAt,
	})
	return nil
}

func (r *Reservation) Expire(now time.Time) error {
	if !r.Expirable(now) {
		return ErrInvalidTransition
	}
	next, err := r.State().Next(TransitionExpire)
	if err != nil {
		return err
	}
	at := now.UTC()
	r.Status, r.PaymentStatus = next.Status, next.Payment
	r.CancelledAt = &at
	r.UpdatedAt = at
	r.Record(Expired{ReservationID: r.ID, ListingID: r.ListingID, Range: r.Range, At: at})
	return nil
}

// Clone returns a copy detached from r's pointers and pending events.
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.EventRecorder = events.EventRecorder{}
	c.ExpiresAt = cloneTime(r.ExpiresAt)
	c.PaidAt = cloneTime(r.PaidAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// BuildFunc constructs the reservation once the conflict check passed. It runs
// inside the store's critical section and must not do I/O.
type BuildFunc func() (*Reservation, error)

type AdmitRequest struct {
	ListingID listings.ListingID
	Range     daterange.DateRange
	Now       time.Time
	Build     BuildFunc
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Reservation, error)
	ByCheckoutSession(ctx context.Context, sessionID string) (*Reservation, error)
	// ListActiveByListing returns pending and confirmed reservations.
	ListActiveByListing(ctx context.Context, listingID listings.ListingID) ([]*Reservation, error)
	// Admit checks the range against blocking reservations and inserts the
	// built reservation as one atomic unit per listing. A conflict is reported
	// as *availability.ConflictError.
	Admit(ctx context.Context, req AdmitRequest) (*Reservation, error)
	// MarkConfirmed moves a held reservation to confirmed/paid. applied is
	// false when the conditional update matched nothing.
	MarkConfirmed(ctx context.Context, id ID, paymentIntentID string, at time.Time) (applied bool, err error)
	// ExpireStale cancels up to limit reservations matching the sweep
	// predicate. It returns only the rows its conditional update transitioned,
	// already in the expired state with the Expired event recorded.
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	// AttachCheckout stores provider references on a pending reservation.
	AttachCheckout(ctx context.Context, id ID, sessionID, paymentIntentID string) (applied bool, err error)
}
