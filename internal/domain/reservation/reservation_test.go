package reservation

import (
	"errors"
	"testing"
	"time"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/shared/daterange"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testListing() *listings.Listing {
	return &listings.Listing{ID: "listing-1", Host: "host-1", UnitPrice: 1000, BillingUnit: listings.BillNight}
}

func newHeld(t *testing.T) *Reservation {
	t.Helper()
	dr, err := daterange.Parse("2024-01-10", "2024-01-13")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	q, err := pricing.ForListing(testListing(), dr)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	r, err := New(CreateParams{ID: "res-1", Listing: testListing(), RenterID: "renter-1", Range: dr, Quote: q, Now: testNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewCreatesHeldReservation(t *testing.T) {
	r := newHeld(t)
	if r.State() != StateHeld {
		t.Errorf("Expected state %s, got %s", StateHeld, r.State())
	}
	if r.TotalAmount != 3000 {
		t.Errorf("Expected total 3000, got %d", r.TotalAmount)
	}
	if r.ExpiresAt == nil || !r.ExpiresAt.Equal(testNow.Add(DefaultHoldDuration)) {
		t.Errorf("Expected expiry now+15m, got %v", r.ExpiresAt)
	}
	if got := r.PendingEvents(); len(got) != 1 || got[0].EventName() != "reservation.requested" {
		t.Errorf("Expected one requested event, got %v", got)
	}
}

func TestNewRejectsSelfBookingBeforeRange(t *testing.T) {
	_, err := New(CreateParams{Listing: testListing(), RenterID: "host-1", Range: daterange.DateRange{}, Now: testNow})
	if !errors.Is(err, ErrSelfBooking) {
		t.Fatalf("Expected ErrSelfBooking, got %v", err)
	}
	_, err = New(CreateParams{Listing: testListing(), RenterID: "renter-1", Range: daterange.DateRange{}, Now: testNow})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Expected ErrInvalidRange, got %v", err)
	}
}

func TestBlockingPredicate(t *testing.T) {
	r := newHeld(t)
	if !r.Blocking(testNow) {
		t.Error("fresh hold should block")
	}
	if r.Blocking(r.ExpiresAt.Add(time.Second)) {
		t.Error("lapsed hold should not block")
	}
	if r.Blocking(*r.ExpiresAt) {
		t.Error("hold should stop blocking at its expiry instant")
	}
	r.ExpiresAt = nil
	if !r.Blocking(testNow.Add(24 * time.Hour)) {
		t.Error("pending without expiry should block")
	}
	if r.Expirable(testNow.Add(24 * time.Hour)) {
		t.Error("pending without expiry should never be swept")
	}
}

func TestConfirmClearsHold(t *testing.T) {
	r := newHeld(t)
	if err := r.Confirm("pi_1", testNow.Add(time.Minute)); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if r.State() != StateConfirmed {
		t.Errorf("Expected %s, got %s", StateConfirmed, r.State())
	}
	if r.ExpiresAt != nil || r.PaidAt == nil {
		t.Errorf("Expected expiry cleared and paid_at stamped, got %v / %v", r.ExpiresAt, r.PaidAt)
	}
	if r.PaymentIntentID != "pi_1" {
		t.Errorf("Expected payment intent pi_1, got %q", r.PaymentIntentID)
	}
	if err := r.Confirm("pi_1", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on second confirm, got %v", err)
	}
	if err := r.Expire(testNow.Add(time.Hour)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition when expiring confirmed, got %v", err)
	}
}

func TestExpireRespectsSweepPredicate(t *testing.T) {
	r := newHeld(t)
	if err := r.Expire(testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected live hold to refuse expiry, got %v", err)
	}
	withIntent := newHeld(t)
	withIntent.PaymentIntentID = "pi_inflight"
	if withIntent.Expirable(testNow.Add(time.Hour)) {
		t.Error("reservation with payment in flight must not be expirable")
	}
	later := testNow.Add(DefaultHoldDuration + time.Second)
	if err := r.Expire(later); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if r.State() != StateExpired || r.CancelledAt == nil {
		t.Errorf("Expected expired state with cancellation stamp, got %s", r.State())
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from State
		tr   Transition
		want State
		ok   bool
	}{
		{StateHeld, TransitionConfirm, StateConfirmed, true},
		{StateHeld, TransitionExpire, StateExpired, true},
		{StateConfirmed, TransitionExpire, State{}, false},
		{StateExpired, TransitionConfirm, State{}, false},
		{State{Status: StatusPending, Payment: PaymentPaid}, TransitionConfirm, State{}, false},
	}
	for _, tc := range cases {
		got, err := tc.from.Next(tc.tr)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("%s --%s--> expected %s, got %s (%v)", tc.from, tc.tr, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s --%s--> expected ErrInvalidTransition, got %v", tc.from, tc.tr, err)
		}
	}
	if !StateConfirmed.Terminal() || !StateExpired.Terminal() || StateHeld.Terminal() {
		t.Error("unexpected terminal classification")
	}
}

func TestParsePaymentStatusAcceptsLegacyValues(t *testing.T) {
	for _, raw := range []string{"", "pending", "UNPAID"} {
		got, err := ParsePaymentStatus(raw)
		if err != nil || got != PaymentUnpaid {
			t.Errorf("ParsePaymentStatus(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParsePaymentStatus("refunded"); err == nil {
		t.Error("expected error for unknown payment status")
	}
}
