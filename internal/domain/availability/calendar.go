package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/domain/shared/daterange"
)

var ErrConflict = errors.New("availability: range overlaps a blocking reservation")

type Reason string

const (
	ReasonNone          Reason = "NONE"
	ReasonAlreadyBooked Reason = "ALREADY_BOOKED"
	ReasonOnHold        Reason = "ON_HOLD"
	ReasonInvalidRange  Reason = "INVALID_RANGE"
)

// BlockingRange is a date range currently unavailable for new bookings.
type BlockingRange struct {
	ReservationID reservation.ID
	Range         daterange.DateRange
	Status        reservation.Status
	ExpiresAt     *time.Time
}

type Verdict struct {
	Blocked       bool
	Reason        Reason
	Remaining     time.Duration
	ConflictingID reservation.ID
}

// RemainingMs is the hold countdown in whole milliseconds.
func (v Verdict) RemainingMs() int64 {
	return v.Remaining.Milliseconds()
}

type Result struct {
	Ranges  []BlockingRange
	Verdict *Verdict
}

// Evaluate computes the blocking ranges among reservations at now. When a
// candidate is supplied the result also carries a verdict for it.
func Evaluate(reservations []*reservation.Reservation, candidate *daterange.DateRange, now time.Time) Result {
	blocking := Blocking(reservations, now)
	result := Result{Ranges: make([]BlockingRange, 0, len(blocking))}
	for _, r := range blocking {
		result.Ranges = append(result.Ranges, BlockingRange{
			ReservationID: r.ID,
			Range:         r.Range,
			Status:        r.Status,
			ExpiresAt:     r.ExpiresAt,
		})
	}
	sort.SliceStable(result.Ranges, func(i, j int) bool {
		return result.Ranges[i].Range.Start.Before(result.Ranges[j].Range.Start)
	})
	if candidate != nil {
		v := Check(blocking, *candidate, now)
		result.Verdict = &v
	}
	return result
}

// Blocking filters reservations down to those that block at now.
func Blocking(reservations []*reservation.Reservation, now time.Time) []*reservation.Reservation {
	out := make([]*reservation.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r != nil && r.Blocking(now) {
			out = append(out, r)
		}
	}
	return out
}

// Check returns the verdict for candidate against reservations. A confirmed
// overlap always reports ALREADY_BOOKED; otherwise the longest remaining hold
// among overlapping pending reservations is reported.
func Check(reservations []*reservation.Reservation, candidate daterange.DateRange, now time.Time) Verdict {
	if err := candidate.Validate(); err != nil {
		return Verdict{Blocked: true, Reason: ReasonInvalidRange}
	}
	var held *Verdict
	for _, r := range reservations {
		if r == nil || !r.Blocking(now) || !r.Range.Overlaps(candidate) {
			continue
		}
		if r.Status == reservation.StatusConfirmed {
			return Verdict{Blocked: true, Reason: ReasonAlreadyBooked, ConflictingID: r.ID}
		}
		remaining := r.HoldRemaining(now)
		if held == nil {
			held = &Verdict{Blocked: true, Reason: ReasonOnHold, Remaining: remaining, ConflictingID: r.ID}
			continue
		}
		if remaining > held.Remaining {
			held.Remaining = remaining
		}
	}
	if held != nil {
		return *held
	}
	return Verdict{Reason: ReasonNone}
}

// ConflictError rejects an admission that overlaps a blocking reservation.
type ConflictError struct {
	Reason        Reason
	Remaining     time.Duration
	ReservationID reservation.ID
}

func NewConflictError(v Verdict) *ConflictError {
	return &ConflictError{Reason: v.Reason, Remaining: v.Remaining, ReservationID: v.ConflictingID}
}

func (e *ConflictError) Error() string {
	if e.Reason == ReasonOnHold && e.Remaining > 0 {
		return fmt.Sprintf("%s: %s for another %s", ErrConflict.Error(), e.Reason, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
