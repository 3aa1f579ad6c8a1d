package reservations

import (
	"context"

	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/queries"
	"rentme-reservations/internal/domain/reservation"
)

const getReservationKey = "reservations.get"

type GetReservationQuery struct {
	ReservationID string
	UserID        string
}

func (q GetReservationQuery) Key() string { return getReservationKey }

func (q GetReservationQuery) ActorID() string { return q.UserID }

type GetReservationHandler struct {
	Reservations reservation.Repository
	Currency     string
}

// Handle returns the reservation to its renter or the listing host.
func (h *GetReservationHandler) Handle(ctx context.Context, q GetReservationQuery) (*dto.Reservation, error) {
	r, err := h.Reservations.ByID(ctx, reservation.ID(q.ReservationID))
	if err != nil {
		return nil, err
	}
	if q.UserID != r.RenterID && q.UserID != string(r.HostID) {
		return nil, reservation.ErrNotParticipant
	}
	out := dto.MapReservation(r, h.Currency)
	return &out, nil
}

var _ queries.Handler[GetReservationQuery, *dto.Reservation] = (*GetReservationHandler)(nil)
