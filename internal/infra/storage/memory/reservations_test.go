package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/domain/shared/daterange"
)

var (
	testNow     = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	testListing = &domainlistings.Listing{ID: "listing-1", Host: "host-1", UnitPrice: 1000, BillingUnit: domainlistings.BillNight}
)

func mustRange(t *testing.T, start, end string) daterange.DateRange {
	t.Helper()
	dr, err := daterange.Parse(start, end)
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	return dr
}

func admitRequest(id string, dr daterange.DateRange, now time.Time) reservation.AdmitRequest {
	return reservation.AdmitRequest{
		ListingID: testListing.ID,
		Range:     dr,
		Now:       now,
		Build: func() (*reservation.Reservation, error) {
			q, err := pricing.ForListing(testListing, dr)
			if err != nil {
				return nil, err
			}
			return reservation.New(reservation.CreateParams{
				ID: reservation.ID(id), Listing: testListing, RenterID: "renter-" + id, Range: dr, Quote: q, Now: now,
			})
		},
	}
}

func TestAdmitConcurrentOverlapsAdmitOnlyOne(t *testing.T) {
	repo := NewReservationRepository()
	dr := mustRange(t, "2024-01-10", "2024-01-13")

	var (
		wg        sync.WaitGroup
		admitted  atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Admit(context.Background(), admitRequest(fmt.Sprintf("r-%d", i), dr, testNow))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domainavailability.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Fatalf("Expected exactly one admission, got %d", admitted.Load())
	}
	if conflicts.Load() != 63 {
		t.Errorf("Expected 63 conflicts, got %d", conflicts.Load())
	}
}

func TestAdmitReportsOnHoldThenSucceedsAfterLapse(t *testing.T) {
	repo := NewReservationRepository()
	ctx := context.Background()
	if _, err := repo.Admit(ctx, admitRequest("a", mustRange(t, "2024-01-10", "2024-01-13"), testNow)); err != nil {
		t.Fatalf("first admit: %v", err)
	}

	_, err := repo.Admit(ctx, admitRequest("b", mustRange(t, "2024-01-12", "2024-01-14"), testNow.Add(time.Minute)))
	var ce *domainavailability.ConflictError
	if !errors.As(err, &ce) || ce.Reason != domainavailability.ReasonOnHold || ce.Remaining <= 0 {
		t.Fatalf("Expected ON_HOLD conflict with countdown, got %v", err)
	}

	later := testNow.Add(reservation.DefaultHoldDuration + time.Second)
	if _, err := repo.Admit(ctx, admitRequest("c", mustRange(t, "2024-01-12", "2024-01-14"), later)); err != nil {
		t.Fatalf("Expected admission after hold lapsed, got %v", err)
	}
}

func TestAdmitDoesNotCallBuildOnConflict(t *testing.T) {
	repo := NewReservationRepository()
	ctx := context.Background()
	dr := mustRange(t, "2024-01-10", "2024-01-13")
	if _, err := repo.Admit(ctx, admitRequest("a", dr, testNow)); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	called := false
	_, err := repo.Admit(ctx, reservation.AdmitRequest{
		ListingID: testListing.ID,
		Range:     dr,
		Now:       testNow,
		Build: func() (*reservation.Reservation, error) {
			called = true
			return nil, pricing.ErrMinDuration
		},
	})
	if !errors.Is(err, domainavailability.ErrConflict) {
		t.Fatalf("Expected conflict before pricing, got %v", err)
	}
	if called {
		t.Error("Build must not run when the range conflicts")
	}
}

func TestConfirmAndExpireRaceHasOneWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		repo := NewReservationRepository()
		held, err := repo.Admit(context.Background(), admitRequest("race", mustRange(t, "2024-01-10", "2024-01-13"), testNow))
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		at := testNow.Add(reservation.DefaultHoldDuration + time.Second)

		var (
			wg        sync.WaitGroup
			confirmed bool
			expired   []*reservation.Reservation
			errs      = make(chan error, 2)
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			applied, err := repo.MarkConfirmed(context.Background(), held.ID, "pi_1", at)
			confirmed = applied
			errs <- err
		}()
		go func() {
			defer wg.Done()
			out, err := repo.ExpireStale(context.Background(), at, 10)
			expired = out
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("loser must not error: %v", err)
			}
		}
		if confirmed == (len(expired) == 1) {
			t.Fatalf("Expected exactly one winner, confirmed=%v expired=%d", confirmed, len(expired))
		}
		final, _ := repo.ByID(context.Background(), held.ID)
		if confirmed && final.State() != reservation.StateConfirmed {
			t.Fatalf("Expected confirmed state, got %s", final.State())
		}
		if !confirmed && final.State() != reservation.StateExpired {
			t.Fatalf("Expected expired state, got %s", final.State())
		}
	}
}

func TestMarkConfirmedRefusesLapsedHoldWhenDatesWereRebooked(t *testing.T) {
	repo := NewReservationRepository()
	ctx := context.Background()
	dr := mustRange(t, "2024-01-10", "2024-01-13")
	first, err := repo.Admit(ctx, admitRequest("first", dr, testNow))
	if err != nil {
		t.Fatalf("admit first: %v", err)
	}
	later := testNow.Add(reservation.DefaultHoldDuration + time.Minute)
	if _, err := repo.Admit(ctx, admitRequest("second", dr, later)); err != nil {
		t.Fatalf("admit second: %v", err)
	}
	applied, err := repo.MarkConfirmed(ctx, first.ID, "pi_late", later)
	if err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if applied {
		t.Fatal("late confirmation must not double-book the listing")
	}
}

func TestExpireStaleSkipsPaymentInFlightAndLiveHolds(t *testing.T) {
	repo := NewReservationRepository()
	ctx := context.Background()
	inFlight, _ := repo.Admit(ctx, admitRequest("inflight", mustRange(t, "2024-01-01", "2024-01-03"), testNow))
	if _, err := repo.AttachCheckout(ctx, inFlight.ID, "cs_1", "pi_1"); err != nil {
		t.Fatalf("AttachCheckout: %v", err)
	}
	if _, err := repo.Admit(ctx, admitRequest("stale", mustRange(t, "2024-01-05", "2024-01-07"), testNow)); err != nil {
		t.Fatalf("admit stale: %v", err)
	}
	later := testNow.Add(reservation.DefaultHoldDuration + time.Second)
	if _, err := repo.Admit(ctx, admitRequest("live", mustRange(t, "2024-01-09", "2024-01-11"), later)); err != nil {
		t.Fatalf("admit live: %v", err)
	}

	out, err := repo.ExpireStale(ctx, later, 100)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if len(out) != 1 || out[0].ID != "stale" {
		t.Fatalf("Expected only the stale hold to expire, got %v", out)
	}
	if evs := out[0].PendingEvents(); len(evs) != 1 || evs[0].EventName() != "reservation.expired" {
		t.Errorf("Expected expired event on returned reservation, got %v", evs)
	}
	again, _ := repo.ExpireStale(ctx, later, 100)
	if len(again) != 0 {
		t.Errorf("Expected second sweep to be a no-op, got %d", len(again))
	}
}

func TestByCheckoutSession(t *testing.T) {
	repo := NewReservationRepository()
	ctx := context.Background()
	r, _ := repo.Admit(ctx, admitRequest("s", mustRange(t, "2024-01-01", "2024-01-03"), testNow))
	if _, err := repo.AttachCheckout(ctx, r.ID, "cs_abc", ""); err != nil {
		t.Fatalf("AttachCheckout: %v", err)
	}
	got, err := repo.ByCheckoutSession(ctx, "cs_abc")
	if err != nil || got.ID != r.ID {
		t.Fatalf("Expected %s, got %v (%v)", r.ID, got, err)
	}
	if _, err := repo.ByCheckoutSession(ctx, "cs_missing"); !errors.Is(err, reservation.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
