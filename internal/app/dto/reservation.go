package dto

import (
	"time"

	"rentme-reservations/internal/domain/availability"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/domain/shared/daterange"
)

type Reservation struct {
	ID                string     `json:"id"`
	ListingID         string     `json:"listing_id"`
	RenterID          string     `json:"renter_id"`
	StartDate         string     `json:"start_date"`
	EndDate           string     `json:"end_date"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"payment_status"`
	BillingUnit       string     `json:"billing_unit"`
	Units             int        `json:"units"`
	UnitPrice         int64      `json:"unit_price"`
	TotalAmount       int64      `json:"total_amount"`
	Currency          string     `json:"currency,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CheckoutSessionID string     `json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func MapReservation(r *reservation.Reservation, currency string) Reservation {
	return Reservation{
		ID:                string(r.ID),
		ListingID:         string(r.ListingID),
		RenterID:          r.RenterID,
		StartDate:         r.Range.Start.Format(daterange.DateLayout),
		EndDate:           r.Range.End.Format(daterange.DateLayout),
		Status:            string(r.Status),
		PaymentStatus:     string(r.PaymentStatus),
		BillingUnit:       string(r.BillingUnit),
		Units:             r.Units,
		UnitPrice:         r.UnitPrice,
		TotalAmount:       r.TotalAmount,
		Currency:          currency,
		ExpiresAt:         r.ExpiresAt,
		PaidAt:            r.PaidAt,
		CancelledAt:       r.CancelledAt,
		CheckoutSessionID: r.CheckoutSessionID,
		CreatedAt:         r.CreatedAt,
	}
}

type BlockingRange struct {
	ReservationID string     `json:"reservation_id"`
	StartDate     string     `json:"start_date"`
	EndDate       string     `json:"end_date"`
	Status        string     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Availability is the calculator output. Verdict fields are set only when a
// candidate range was supplied.
type Availability struct {
	ListingID   string          `json:"listing_id"`
	Ranges      []BlockingRange `json:"ranges"`
	Blocked     *bool           `json:"blocked,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	RemainingMs *int64          `json:"remaining_ms,omitempty"`
}

func MapAvailability(listingID string, res availability.Result) Availability {
	out := Availability{ListingID: listingID, Ranges: make([]BlockingRange, 0, len(res.Ranges))}
	for _, br := range res.Ranges {
		out.Ranges = append(out.Ranges, BlockingRange{
			ReservationID: string(br.ReservationID),
			StartDate:     br.Range.Start.Format(daterange.DateLayout),
			EndDate:       br.Range.End.Format(daterange.DateLayout),
			Status:        string(br.Status),
			ExpiresAt:     br.ExpiresAt,
		})
	}
	if v := res.Verdict; v != nil {
		blocked := v.Blocked
		out.Blocked = &blocked
		out.Reason = string(v.Reason)
		if v.Reason == availability.ReasonOnHold {
			ms := v.RemainingMs()
			out.RemainingMs = &ms
		}
	}
	return out
}

type Checkout struct {
	ReservationID string `json:"reservation_id"`
	SessionID     string `json:"session_id"`
	RedirectURL   string `json:"redirect_url"`
}

type PaymentAck struct {
	OK            bool   `json:"ok"`
	Deduped       bool   `json:"deduped,omitempty"`
	Ignored       bool   `json:"ignored,omitempty"`
	AlreadyPaid   bool   `json:"already_paid,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
	Outcome       string `json:"outcome"`
}

type Sweep struct {
	ExpiredCount int      `json:"expired_count"`
	ExpiredIDs   []string `json:"expired_ids"`
}
