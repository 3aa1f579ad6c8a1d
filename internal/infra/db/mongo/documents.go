package mongo

import (
	"time"

	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

type reservationDocument struct {
	ID                string     `bson:"_id"`
	ListingID         string     `bson:"listing_id"`
	HostID            string     `bson:"host_id"`
	RenterID          string     `bson:"renter_id"`
	Start             time.Time  `bson:"start"`
	End               time.Time  `bson:"end"`
	Status            string     `bson:"status"`
	PaymentStatus     string     `bson:"payment_status"`
	BillingUnit       string     `bson:"billing_unit"`
	Units             int        `bson:"units"`
	UnitPrice         int64      `bson:"unit_price"`
	TotalAmount       int64      `bson:"total_amount"`
	ExpiresAt         *time.Time `bson:"expires_at"`
	PaidAt            *time.Time `bson:"paid_at,omitempty"`
	CancelledAt       *time.Time `bson:"cancelled_at,omitempty"`
	CheckoutSessionID string     `bson:"checkout_session_id,omitempty"`
	PaymentIntentID   string     `bson:"payment_intent_id"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
	Version           int64      `bson:"version"`
}

func newReservationDocument(r *reservation.Reservation) reservationDocument {
	return reservationDocument{
		ID:                string(r.ID),
		ListingID:         string(r.ListingID),
		HostID:            string(r.HostID),
		RenterID:          r.RenterID,
		Start:             r.Range.Start,
		End:               r.Range.End,
		Status:            string(r.Status),
		PaymentStatus:     string(r.PaymentStatus),
		BillingUnit:       string(r.BillingUnit),
		Units:             r.Units,
		UnitPrice:         r.UnitPrice,
		TotalAmount:       r.TotalAmount,
		ExpiresAt:         r.ExpiresAt,
		PaidAt:            r.PaidAt,
		CancelledAt:       r.CancelledAt,
		CheckoutSessionID: r.CheckoutSessionID,
		PaymentIntentID:   r.PaymentIntentID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
}

func (d reservationDocument) toAggregate() (*reservation.Reservation, error) {
	status, err := reservation.ParseStatus(d.Status)
	if err != nil {
		return nil, err
	}
	payment, err := reservation.ParsePaymentStatus(d.PaymentStatus)
	if err != nil {
		return nil, err
	}
	return &reservation.Reservation{
		ID:                reservation.ID(d.ID),
		ListingID:         domainlistings.ListingID(d.ListingID),
		HostID:            domainlistings.HostID(d.HostID),
		RenterID:          d.RenterID,
		Range:             domainrange.DateRange{Start: domainrange.Day(d.Start), End: domainrange.Day(d.End)},
		Status:            status,
		PaymentStatus:     payment,
		BillingUnit:       domainlistings.BillingUnit(d.BillingUnit),
		Units:             d.Units,
		UnitPrice:         d.UnitPrice,
		TotalAmount:       d.TotalAmount,
		ExpiresAt:         utcPtr(d.ExpiresAt),
		PaidAt:            utcPtr(d.PaidAt),
		CancelledAt:       utcPtr(d.CancelledAt),
		CheckoutSessionID: d.CheckoutSessionID,
		PaymentIntentID:   d.PaymentIntentID,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
		Version:           d.Version,
	}, nil
}

type listingDocument struct {
	ID          string `bson:"_id"`
	HostID      string `bson:"host_id"`
	Title       string `bson:"title"`
	UnitPrice   int64  `bson:"unit_price"`
	BillingUnit string `bson:"billing_unit"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:          string(l.ID),
		HostID:      string(l.Host),
		Title:       l.Title,
		UnitPrice:   l.UnitPrice,
		BillingUnit: string(l.BillingUnit),
	}
}

func (d listingDocument) toListing() (*domainlistings.Listing, error) {
	unit, err := domainlistings.ParseBillingUnit(d.BillingUnit)
	if err != nil {
		return nil, err
	}
	return &domainlistings.Listing{
		ID:          domainlistings.ListingID(d.ID),
		Host:        domainlistings.HostID(d.HostID),
		Title:       d.Title,
		UnitPrice:   d.UnitPrice,
		BillingUnit: unit,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
