package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"

	"rentme-reservations/internal/app/middleware"
	appoutbox "rentme-reservations/internal/app/outbox"
	"rentme-reservations/internal/app/policies"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/payments"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/infra/config"
	mongodb "rentme-reservations/internal/infra/db/mongo"
	"rentme-reservations/internal/infra/db/postgres"
	"rentme-reservations/internal/infra/inbox"
	"rentme-reservations/internal/infra/messaging/scylla"
	"rentme-reservations/internal/infra/obs"
	infraoutbox "rentme-reservations/internal/infra/outbox"
	"rentme-reservations/internal/infra/redisx"
	"rentme-reservations/internal/infra/storage/memory"
)

// ListingStore is the listing repository plus the write used by fixtures.
type ListingStore interface {
	domainlistings.Repository
	Save(ctx context.Context, listing *domainlistings.Listing) error
}

// Stores holds every persistence adapter selected by the configuration.
type Stores struct {
	Listings     ListingStore
	Reservations reservation.Repository
	Ledger       payments.Ledger
	Outbox       appoutbox.Outbox
	Relay        appoutbox.Relay
	Idempotency  middleware.IdempotencyStore
	Locker       policies.Locker
	Messaging    policies.MessagingPort
	Checks       map[string]obs.Check

	closers []func(context.Context) error
}

// OpenStores connects the configured backends. Redis, when configured,
// replaces the idempotency cache and the sweep lock; Scylla replaces the
// in-process message store.
func OpenStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{Checks: map[string]obs.Check{}}
	if err := s.openPrimary(ctx, cfg); err != nil {
		s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	if cfg.RedisAddr != "" {
		rdb, err := redisx.New(ctx, cfg.RedisAddr)
		if err != nil {
			s.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.onClose(func(context.Context) error { return rdb.Close() })
		s.Idempotency = redisx.NewIdempotencyStore(rdb)
		s.Locker = redisx.NewLocker(rdb)
		s.Checks["redis"] = redisCheck(rdb)
	}
	if s.Idempotency == nil {
		s.Idempotency = memory.NewIdempotencyStore()
	}
	if s.Locker == nil {
		s.Locker = memory.NewLocker()
	}
	if cfg.ScyllaEnabled() {
		session, err := scylla.NewSession(ctx, cfg, logger)
		if err != nil {
			s.Close(context.WithoutCancel(ctx))
			return nil, err
		}
		s.onClose(func(context.Context) error { session.Close(); return nil })
		s.Messaging = scylla.NewStore(session, logger)
		s.Checks["scylla"] = scyllaCheck(session)
	} else {
		s.Messaging = memory.NewMessageStore()
	}
	logger.Info("stores ready", "driver", cfg.StoreDriver, "redis", cfg.RedisAddr != "", "scylla", cfg.ScyllaEnabled())
	return s, nil
}

func (s *Stores) openPrimary(ctx context.Context, cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		s.onClose(client.Close)
		reservations := mongodb.NewReservationRepository(client.DB)
		ledger := inbox.NewStore(client.DB)
		box := infraoutbox.NewStore(client.DB)
		idem := mongodb.NewIdempotencyStore(client.DB)
		for _, ensure := range []func(context.Context) error{
			reservations.EnsureIndexes, ledger.EnsureIndexes, box.EnsureIndexes, idem.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				return fmt.Errorf("mongo indexes: %w", err)
			}
		}
		s.Listings = mongodb.NewListingRepository(client.DB)
		s.Reservations = reservations
		s.Ledger = ledger
		s.Outbox, s.Relay = box, box
		s.Idempotency = idem
		s.Checks["mongo"] = client.Ping
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		s.onClose(func(context.Context) error { return db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		box := postgres.NewOutbox(db)
		s.Listings = postgres.NewListingRepository(db)
		s.Reservations = postgres.NewReservationRepository(db)
		s.Ledger = postgres.NewLedger(db)
		s.Outbox, s.Relay = box, box
		s.Checks["postgres"] = db.PingContext
	default:
		box := memory.NewOutbox()
		s.Listings = memory.NewListingRepository()
		s.Reservations = memory.NewReservationRepository()
		s.Ledger = memory.NewPaymentLedger()
		s.Outbox, s.Relay = box, box
	}
	return nil
}

func (s *Stores) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func redisCheck(rdb *redis.Client) obs.Check {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func scyllaCheck(session *gocql.Session) obs.Check {
	return func(ctx context.Context) error {
		return session.Query("SELECT release_version FROM system.local").WithContext(ctx).Exec()
	}
}
