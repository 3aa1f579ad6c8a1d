package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
)

var errListingMismatch = errors.New("memory: built reservation belongs to another listing")

// ReservationRepository serializes every write behind one mutex, which makes
// admission, confirmation and expiry atomic with respect to each other.
type ReservationRepository struct {
	mu        sync.Mutex
	items     map[reservation.ID]*reservation.Reservation
	bySession map[string]reservation.ID
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		items:     make(map[reservation.ID]*reservation.Reservation),
		bySession: make(map[string]reservation.ID),
	}
}

func (r *ReservationRepository) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *ReservationRepository) ByCheckoutSession(ctx context.Context, sessionID string) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	return r.items[id].Clone(), nil
}

func (r *ReservationRepository) ListActiveByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(listingID, true), nil
}

func (r *ReservationRepository) activeLocked(listingID domainlistings.ListingID, clone bool) []*reservation.Reservation {
	out := make([]*reservation.Reservation, 0)
	for _, item := range r.items {
		if item.ListingID != listingID {
			continue
		}
		if item.Status != reservation.StatusPending && item.Status != reservation.StatusConfirmed {
			continue
		}
		if clone {
			item = item.Clone()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start.Before(out[j].Range.Start) })
	return out
}

func (r *ReservationRepository) Admit(ctx context.Context, req reservation.AdmitRequest) (*reservation.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	verdict := domainavailability.Check(r.activeLocked(req.ListingID, false), req.Range, req.Now)
	switch verdict.Reason {
	case domainavailability.ReasonNone:
	case domainavailability.ReasonInvalidRange:
		return nil, reservation.ErrInvalidRange
	default:
		return nil, domainavailability.NewConflictError(verdict)
	}
	created, err := req.Build()
	if err != nil {
		return nil, err
	}
	if created.ListingID != req.ListingID {
		return nil, errListingMismatch
	}
	r.items[created.ID] = created.Clone()
	return created, nil
}

func (r *ReservationRepository) MarkConfirmed(ctx context.Context, id reservation.ID, paymentIntentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false, reservation.ErrNotFound
	}
	if !item.Confirmable() {
		return false, nil
	}
	if !item.Blocking(at) && r.overlapsOtherLocked(item, at) {
		return false, nil
	}
	if err := item.Confirm(paymentIntentID, at); err != nil {
		return false, nil
	}
	item.Drain()
	return true, nil
}

// overlapsOtherLocked reports another blocking reservation over item's dates.
func (r *ReservationRepository) overlapsOtherLocked(item *reservation.Reservation, at time.Time) bool {
	for _, other := range r.activeLocked(item.ListingID, false) {
		if other.ID != item.ID && other.Blocking(at) && other.Range.Overlaps(item.Range) {
			return true
		}
	}
	return false
}

func (r *ReservationRepository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stale := make([]*reservation.Reservation, 0)
	for _, item := range r.items {
		if item.Expirable(now) {
			stale = append(stale, item)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ExpiresAt.Before(*stale[j].ExpiresAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	out := make([]*reservation.Reservation, 0, len(stale))
	for _, item := range stale {
		expired := item.Clone()
		if err := expired.Expire(now); err != nil {
			continue
		}
		r.items[item.ID] = expired.Clone()
		out = append(out, expired)
	}
	return out, nil
}

func (r *ReservationRepository) AttachCheckout(ctx context.Context, id reservation.ID, sessionID, paymentIntentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return false, reservation.ErrNotFound
	}
	if !item.Confirmable() {
		return false, nil
	}
	if item.CheckoutSessionID != "" && item.CheckoutSessionID != sessionID {
		delete(r.bySession, item.CheckoutSessionID)
	}
	item.CheckoutSessionID = sessionID
	if paymentIntentID != "" {
		item.PaymentIntentID = paymentIntentID
	}
	item.UpdatedAt = time.Now().UTC()
	if sessionID != "" {
		r.bySession[sessionID] = id
	}
	return true, nil
}

// Seed stores reservations as is, bypassing admission. Used by fixtures and tests.
func (r *ReservationRepository) Seed(items ...*reservation.Reservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.items[item.ID] = item.Clone()
		if item.CheckoutSessionID != "" {
			r.bySession[item.CheckoutSessionID] = item.ID
		}
	}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
