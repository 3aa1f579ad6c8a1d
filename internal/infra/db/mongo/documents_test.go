package mongo

import (
	"testing"
	"time"

	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/domain/shared/daterange"
)

func TestReservationDocumentRoundTrip(t *testing.T) {
	listing := &domainlistings.Listing{ID: "listing-1", Host: "host-1", UnitPrice: 1000, BillingUnit: domainlistings.BillNight}
	dr, _ := daterange.Parse("2024-01-10", "2024-01-13")
	q, _ := pricing.ForListing(listing, dr)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, err := reservation.New(reservation.CreateParams{ID: "res-1", Listing: listing, RenterID: "renter-1", Range: dr, Quote: q, Now: now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := newReservationDocument(r).toAggregate()
	if err != nil {
		t.Fatalf("toAggregate: %v", err)
	}
	if got.ID != r.ID || got.HostID != "host-1" || got.TotalAmount != 3000 || got.State() != reservation.StateHeld {
		t.Errorf("unexpected aggregate: %+v", got)
	}
	if !got.Range.Start.Equal(dr.Start) || !got.Range.End.Equal(dr.End) {
		t.Errorf("Expected range %s, got %s", dr, got.Range)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(now.Add(reservation.DefaultHoldDuration)) {
		t.Errorf("Expected hold expiry kept, got %v", got.ExpiresAt)
	}
}

func TestReservationDocumentLegacyPaymentStatus(t *testing.T) {
	doc := reservationDocument{ID: "legacy", Status: "pending", PaymentStatus: "pending"}
	got, err := doc.toAggregate()
	if err != nil {
		t.Fatalf("toAggregate: %v", err)
	}
	if got.PaymentStatus != reservation.PaymentUnpaid || got.ExpiresAt != nil {
		t.Errorf("Expected unpaid legacy row without expiry, got %s %v", got.PaymentStatus, got.ExpiresAt)
	}
	if _, err := (reservationDocument{Status: "archived"}).toAggregate(); err == nil {
		t.Error("Expected unknown status to fail")
	}
}

func TestListingDocumentRejectsUnknownUnit(t *testing.T) {
	if _, err := (listingDocument{ID: "l", BillingUnit: "fortnight"}).toListing(); err == nil {
		t.Error("Expected unknown billing unit error")
	}
	l, err := (listingDocument{ID: "l", HostID: "h", UnitPrice: 5, BillingUnit: "Week"}).toListing()
	if err != nil || l.BillingUnit != domainlistings.BillWeek {
		t.Errorf("Expected week listing, got %+v (%v)", l, err)
	}
}
