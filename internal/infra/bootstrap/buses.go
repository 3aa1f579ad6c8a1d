package bootstrap

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	availabilityapp "rentme-reservations/internal/app/handlers/availability"
	paymentsapp "rentme-reservations/internal/app/handlers/payments"
	reservationsapp "rentme-reservations/internal/app/handlers/reservations"
	"rentme-reservations/internal/app/handlers/sweeper"
	"rentme-reservations/internal/app/middleware"
	appoutbox "rentme-reservations/internal/app/outbox"
	"rentme-reservations/internal/app/policies"
	"rentme-reservations/internal/app/queries"
	domainpayments "rentme-reservations/internal/domain/payments"
	"rentme-reservations/internal/infra/config"
	"rentme-reservations/internal/infra/obs"
)

// Deps are the collaborators that are not stores.
type Deps struct {
	Logger   *slog.Logger
	Metrics  policies.Metrics
	Verifier domainpayments.Verifier
	Checkout policies.CheckoutPort
	Now      func() time.Time
}

type Buses struct {
	Commands commands.Bus
	Queries  queries.Bus
}

// NewBuses registers every handler and wraps the buses with the middleware
// chain: observe, actor check, idempotency.
func NewBuses(cfg config.Config, s *Stores, d Deps) Buses {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	encoder := appoutbox.JSONEventEncoder{IDGenerator: uuid.NewString}

	cmdBus := commands.NewInMemoryBus()
	commands.RegisterHandler[reservationsapp.CreateReservationCommand, *dto.Reservation](cmdBus, &reservationsapp.CreateReservationHandler{
		Listings:     s.Listings,
		Reservations: s.Reservations,
		Outbox:       s.Outbox,
		Encoder:      encoder,
		HoldDuration: cfg.HoldDuration,
		Currency:     cfg.Currency,
		Now:          now,
		NewID:        uuid.NewString,
		Logger:       d.Logger,
	})
	commands.RegisterHandler[reservationsapp.StartCheckoutCommand, *dto.Checkout](cmdBus, &reservationsapp.StartCheckoutHandler{
		Reservations: s.Reservations,
		Listings:     s.Listings,
		Checkout:     d.Checkout,
		Currency:     cfg.Currency,
		Now:          now,
		Logger:       d.Logger,
	})
	commands.RegisterHandler[paymentsapp.ConfirmPaymentCommand, *dto.PaymentAck](cmdBus, &paymentsapp.ConfirmPaymentHandler{
		Verifier:     d.Verifier,
		Ledger:       s.Ledger,
		Reservations: s.Reservations,
		Messaging:    s.Messaging,
		Outbox:       s.Outbox,
		Encoder:      encoder,
		Metrics:      d.Metrics,
		Now:          now,
		Logger:       d.Logger,
	})
	commands.RegisterHandler[sweeper.SweepExpiredCommand, *dto.Sweep](cmdBus, &sweeper.SweepExpiredHandler{
		Reservations: s.Reservations,
		Outbox:       s.Outbox,
		Encoder:      encoder,
		Lock:         s.Locker,
		LockTTL:      cfg.SweepLockTTL,
		BatchSize:    cfg.SweepBatch,
		Metrics:      d.Metrics,
		Now:          now,
		Logger:       d.Logger,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler[availabilityapp.CheckAvailabilityQuery, dto.Availability](queryBus, &availabilityapp.CheckAvailabilityHandler{
		Listings:     s.Listings,
		Reservations: s.Reservations,
		Now:          now,
	})
	queries.RegisterHandler[reservationsapp.GetReservationQuery, *dto.Reservation](queryBus, &reservationsapp.GetReservationHandler{
		Reservations: s.Reservations,
		Currency:     cfg.Currency,
	})

	tracer := obs.Tracer()
	return Buses{
		Commands: middleware.ChainCommands(cmdBus,
			middleware.Observe(d.Logger, d.Metrics, tracer),
			middleware.RequireActor(),
			middleware.Idempotency(s.Idempotency, nil, cfg.IdempotencyTTL),
		),
		Queries: middleware.ChainQueries(queryBus,
			middleware.ObserveQueries(d.Logger, tracer),
			middleware.QueryRequireActor(),
		),
	}
}
