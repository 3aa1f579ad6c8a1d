package reservation

import (
	"time"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/shared/daterange"
)

type Requested struct {
	ReservationID ID
	ListingID     listings.ListingID
	RenterID      string
	Range         daterange.DateRange
	TotalAmount   int64
	ExpiresAt     time.Time
	At            time.Time
}

func (e Requested) EventName() string     { return "reservation.requested" }
func (e Requested) AggregateID() string   { return string(e.ReservationID) }
func (e Requested) OccurredAt() time.Time { return e.At }

type Confirmed struct {
	ReservationID   ID
	ListingID       listings.ListingID
	Range           daterange.DateRange
	TotalAmount     int64
	PaymentIntentID string
	At              time.Time
}

func (e Confirmed) EventName() string     { return "reservation.confirmed" }
func (e Confirmed) AggregateID() string   { return string(e.ReservationID) }
func (e Confirmed) OccurredAt() time.Time { return e.At }

type Expired struct {
	ReservationID ID
	ListingID     listings.ListingID
	Range         daterange.DateRange
	At            time.Time
}

func (e Expired) EventName() string     { return "reservation.expired" }
func (e Expired) AggregateID() string   { return string(e.ReservationID) }
func (e Expired) OccurredAt() time.Time { return e.At }
