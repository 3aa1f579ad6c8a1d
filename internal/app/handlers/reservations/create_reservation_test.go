package reservations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/middleware"
	"rentme-reservations/internal/app/policies"
	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/infra/storage/memory"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	listings *memory.ListingRepository
	repo     *memory.ReservationRepository
	outbox   *memory.Outbox
	create   *CreateReservationHandler
	clock    time.Time
	seq      int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		listings: memory.NewListingRepository(),
		repo:     memory.NewReservationRepository(),
		outbox:   memory.NewOutbox(),
		clock:    testNow,
	}
	ctx := context.Background()
	for _, l := range []*domainlistings.Listing{
		{ID: "nightly", Host: "host-1", UnitPrice: 1000, BillingUnit: domainlistings.BillNight},
		{ID: "monthly", Host: "host-1", UnitPrice: 90000, BillingUnit: domainlistings.BillMonth},
	} {
		if err := e.listings.Save(ctx, l); err != nil {
			t.Fatalf("seed listing: %v", err)
		}
	}
	e.create = &CreateReservationHandler{
		Listings:     e.listings,
		Reservations: e.repo,
		Outbox:       e.outbox,
		Currency:     "usd",
		Now:          func() time.Time { return e.clock },
		NewID: func() string {
			e.seq++
			return fmt.Sprintf("res-%d", e.seq)
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return e
}

func book(listing, renter, start, end string) CreateReservationCommand {
	return CreateReservationCommand{ListingID: listing, RenterID: renter, StartDate: start, EndDate: end}
}

func TestCreateReservationScenarioA(t *testing.T) {
	e := newEnv(t)
	res, err := e.create.Handle(context.Background(), book("nightly", "renter-1", "2024-01-10", "2024-01-13"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.TotalAmount != 3000 {
		t.Errorf("Expected total 3000, got %d", res.TotalAmount)
	}
	if res.Status != "pending" || res.PaymentStatus != "unpaid" {
		t.Errorf("Expected pending/unpaid, got %s/%s", res.Status, res.PaymentStatus)
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(testNow.Add(15*time.Minute)) {
		t.Errorf("Expected expiry now+15m, got %v", res.ExpiresAt)
	}
	if recs := e.outbox.Records(); len(recs) != 1 || recs[0].Name != "reservation.requested" {
		t.Errorf("Expected requested event in outbox, got %v", recs)
	}
}

func TestCreateReservationScenarioB(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.create.Handle(ctx, book("nightly", "renter-1", "2024-01-10", "2024-01-13")); err != nil {
		t.Fatalf("first: %v", err)
	}
	e.clock = testNow.Add(3 * time.Minute)
	_, err := e.create.Handle(ctx, book("nightly", "renter-2", "2024-01-12", "2024-01-14"))
	var ce *domainavailability.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if ce.Reason != domainavailability.ReasonOnHold || ce.Remaining != 12*time.Minute {
		t.Errorf("Expected ON_HOLD with 12m left, got %s %s", ce.Reason, ce.Remaining)
	}
}

func TestCreateReservationValidationOrder(t *testing.T) {
	cases := []struct {
		name string
		cmd  CreateReservationCommand
		want error
	}{
		{"self booking wins over bad range", book("nightly", "host-1", "2024-01-13", "2024-01-13"), reservation.ErrSelfBooking},
		{"scenario E equal dates", book("nightly", "renter-1", "2024-01-13", "2024-01-13"), reservation.ErrInvalidRange},
		{"inverted range", book("nightly", "renter-1", "2024-01-14", "2024-01-13"), reservation.ErrInvalidRange},
		{"monthly minimum", book("monthly", "renter-1", "2024-01-01", "2024-01-20"), pricing.ErrMinDuration},
		{"unknown listing", book("missing", "renter-1", "2024-01-01", "2024-01-03"), domainlistings.ErrListingNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.create.Handle(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if recs := e.outbox.Records(); len(recs) != 0 {
				t.Errorf("Expected no events on failure, got %d", len(recs))
			}
		})
	}
}

func TestCreateReservationIdempotencyReplay(t *testing.T) {
	e := newEnv(t)
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[CreateReservationCommand, *dto.Reservation](bus, e.create)
	chained := middleware.ChainCommands(bus,
		middleware.RequireActor(),
		middleware.Idempotency(memory.NewIdempotencyStore(), nil, time.Hour),
	)
	cmd := book("nightly", "renter-1", "2024-01-10", "2024-01-13")
	cmd.IdempotencyKeyV = "key-1"
	ctx := context.Background()

	first, err := commands.Dispatch[CreateReservationCommand, *dto.Reservation](ctx, chained, cmd)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := commands.Dispatch[CreateReservationCommand, *dto.Reservation](ctx, chained, cmd)
	if err != nil {
		t.Fatalf("replayed dispatch: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected replayed reservation %s, got %s", first.ID, second.ID)
	}

	anonymous := cmd
	anonymous.RenterID = ""
	if _, err := commands.Dispatch[CreateReservationCommand, *dto.Reservation](ctx, chained, anonymous); !errors.Is(err, middleware.ErrActorRequired) {
		t.Errorf("Expected ErrActorRequired, got %v", err)
	}
}

type stubCheckout struct {
	calls int
	req   policies.CheckoutRequest
}

func (s *stubCheckout) CreateSession(ctx context.Context, req policies.CheckoutRequest) (policies.CheckoutSession, error) {
	s.calls++
	s.req = req
	return policies.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

func TestStartCheckout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.create.Handle(ctx, book("nightly", "renter-1", "2024-01-10", "2024-01-13"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	checkout := &stubCheckout{}
	h := &StartCheckoutHandler{
		Reservations: e.repo,
		Listings:     e.listings,
		Checkout:     checkout,
		Currency:     "usd",
		Now:          func() time.Time { return e.clock },
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if _, err := h.Handle(ctx, StartCheckoutCommand{ReservationID: res.ID, RenterID: "someone-else"}); !errors.Is(err, reservation.ErrNotRenter) {
		t.Fatalf("Expected ErrNotRenter, got %v", err)
	}
	out, err := h.Handle(ctx, StartCheckoutCommand{ReservationID: res.ID, RenterID: "renter-1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.SessionID != "cs_test_1" || out.RedirectURL == "" {
		t.Errorf("unexpected checkout: %+v", out)
	}
	if checkout.req.Amount != 3000 || checkout.req.ReservationID != res.ID {
		t.Errorf("unexpected provider request: %+v", checkout.req)
	}
	stored, _ := e.repo.ByCheckoutSession(ctx, "cs_test_1")
	if stored == nil || string(stored.ID) != res.ID {
		t.Errorf("Expected session attached to %s", res.ID)
	}

	e.clock = testNow.Add(time.Hour)
	if _, err := h.Handle(ctx, StartCheckoutCommand{ReservationID: res.ID, RenterID: "renter-1"}); !errors.Is(err, reservation.ErrHoldExpired) {
		t.Errorf("Expected ErrHoldExpired, got %v", err)
	}
}

func TestGetReservationVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.create.Handle(ctx, book("nightly", "renter-1", "2024-01-10", "2024-01-13"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h := &GetReservationHandler{Reservations: e.repo}
	for _, user := range []string{"renter-1", "host-1"} {
		if _, err := h.Handle(ctx, GetReservationQuery{ReservationID: res.ID, UserID: user}); err != nil {
			t.Errorf("%s: unexpected error %v", user, err)
		}
	}
	if _, err := h.Handle(ctx, GetReservationQuery{ReservationID: res.ID, UserID: "stranger"}); !errors.Is(err, reservation.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}
	if _, err := h.Handle(ctx, GetReservationQuery{ReservationID: "nope", UserID: "renter-1"}); !errors.Is(err, reservation.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
