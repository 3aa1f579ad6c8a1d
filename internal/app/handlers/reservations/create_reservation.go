package reservations

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/middleware"
	"rentme-reservations/internal/app/outbox"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

const createReservationKey = "reservations.create"

type CreateReservationCommand struct {
	ListingID       string
	RenterID        string
	StartDate       string
	EndDate         string
	IdempotencyKeyV string
}

func (c CreateReservationCommand) Key() string { return createReservationKey }

func (c CreateReservationCommand) ActorID() string { return c.RenterID }

// IdempotencyKey is scoped to the renter so keys cannot collide across users.
func (c CreateReservationCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return c.RenterID + ":" + c.IdempotencyKeyV
}

func (c CreateReservationCommand) ResultPrototype() any { return &dto.Reservation{} }

type CreateReservationHandler struct {
	Listings     domainlistings.Repository
	Reservations reservation.Repository
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	HoldDuration time.Duration
	Currency     string
	Now          func() time.Time
	NewID        func() string
	Logger       *slog.Logger
}

// Handle admits a reservation. Checks run in order: self booking, range,
// conflict (inside the store's critical section), then pricing.
func (h *CreateReservationHandler) Handle(ctx context.Context, cmd CreateReservationCommand) (*dto.Reservation, error) {
	listing, err := h.Listings.ByID(ctx, domainlistings.ListingID(cmd.ListingID))
	if err != nil {
		return nil, err
	}
	if listing.OwnedBy(cmd.RenterID) {
		return nil, reservation.ErrSelfBooking
	}
	dr, err := domainrange.Parse(cmd.StartDate, cmd.EndDate)
	if err != nil {
		return nil, err
	}
	now := h.now()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("listing_id", string(listing.ID)),
		attribute.String("range", dr.String()),
	)

	created, err := h.Reservations.Admit(ctx, reservation.AdmitRequest{
		ListingID: listing.ID,
		Range:     dr,
		Now:       now,
		Build: func() (*reservation.Reservation, error) {
			quote, err := pricing.ForListing(listing, dr)
			if err != nil {
				return nil, err
			}
			return reservation.New(reservation.CreateParams{
				ID:           reservation.ID(h.newID()),
				Listing:      listing,
				RenterID:     cmd.RenterID,
				Range:        dr,
				Quote:        quote,
				HoldDuration: h.HoldDuration,
				Now:          now,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// The reservation is committed; event relay problems must not fail the request.
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, created.Drain()); err != nil {
		h.logger().ErrorContext(ctx, "record reservation events", "reservation_id", created.ID, "err", err)
	}
	h.logger().InfoContext(ctx, "reservation admitted",
		"reservation_id", created.ID,
		"listing_id", created.ListingID,
		"range", created.Range.String(),
		"total", created.TotalAmount,
	)
	out := dto.MapReservation(created, h.Currency)
	return &out, nil
}

func (h *CreateReservationHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *CreateReservationHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *CreateReservationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[CreateReservationCommand, *dto.Reservation] = (*CreateReservationHandler)(nil)
var _ middleware.IdempotentCommand = CreateReservationCommand{}
var _ middleware.ActorMessage = CreateReservationCommand{}
