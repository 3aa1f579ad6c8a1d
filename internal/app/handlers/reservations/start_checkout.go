package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/policies"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
)

const startCheckoutKey = "reservations.checkout"

type StartCheckoutCommand struct {
	ReservationID string
	RenterID      string
}

func (c StartCheckoutCommand) Key() string { return startCheckoutKey }

func (c StartCheckoutCommand) ActorID() string { return c.RenterID }

type StartCheckoutHandler struct {
	Reservations reservation.Repository
	Listings     domainlistings.Repository
	Checkout     policies.CheckoutPort
	Currency     string
	Now          func() time.Time
	Logger       *slog.Logger
}

// Handle opens a provider checkout session for a live hold owned by the renter.
func (h *StartCheckoutHandler) Handle(ctx context.Context, cmd StartCheckoutCommand) (*dto.Checkout, error) {
	r, err := h.Reservations.ByID(ctx, reservation.ID(cmd.ReservationID))
	if err != nil {
		return nil, err
	}
	if r.RenterID != cmd.RenterID {
		return nil, reservation.ErrNotRenter
	}
	if !r.Confirmable() {
		return nil, fmt.Errorf("%w: reservation is %s", reservation.ErrInvalidTransition, r.State())
	}
	if !r.OnHold(h.now()) {
		return nil, reservation.ErrHoldExpired
	}
	if r.PaymentIntentID != "" {
		return nil, reservation.ErrPaymentInFlight
	}

	description := fmt.Sprintf("Stay %s", r.Range.String())
	if listing, err := h.Listings.ByID(ctx, r.ListingID); err == nil && listing.Title != "" {
		description = fmt.Sprintf("%s, %s", listing.Title, r.Range.String())
	}
	session, err := h.Checkout.CreateSession(ctx, policies.CheckoutRequest{
		ReservationID: string(r.ID),
		RenterID:      r.RenterID,
		ListingID:     string(r.ListingID),
		Description:   description,
		Amount:        r.TotalAmount,
		Currency:      h.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("reservations: create checkout session: %w", err)
	}
	applied, err := h.Reservations.AttachCheckout(ctx, r.ID, session.ID, session.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: reservation left pending during checkout", reservation.ErrInvalidTransition)
	}
	h.logger().InfoContext(ctx, "checkout started", "reservation_id", r.ID, "session_id", session.ID)
	return &dto.Checkout{ReservationID: string(r.ID), SessionID: session.ID, RedirectURL: session.URL}, nil
}

func (h *StartCheckoutHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *StartCheckoutHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[StartCheckoutCommand, *dto.Checkout] = (*StartCheckoutHandler)(nil)
