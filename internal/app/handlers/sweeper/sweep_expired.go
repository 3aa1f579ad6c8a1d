package sweeper

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/outbox"
	"rentme-reservations/internal/app/policies"
	"rentme-reservations/internal/domain/reservation"
)

const (
	sweepExpiredKey  = "reservations.sweep"
	defaultBatchSize = 500
	defaultLockKey   = "reservations:sweep"
)

type SweepExpiredCommand struct {
	// Limit caps the total number of reservations expired by one run; zero
	// means drain everything that is stale.
	Limit int
}

func (c SweepExpiredCommand) Key() string { return sweepExpiredKey }

type SweepExpiredHandler struct {
	Reservations reservation.Repository
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Lock         policies.Locker
	LockKey      string
	LockTTL      time.Duration
	BatchSize    int
	Metrics      policies.Metrics
	Now          func() time.Time
	Logger       *slog.Logger
}

// Handle cancels stale holds batch by batch until a batch expires nothing.
// Rows a concurrent confirmation already took are skipped by the store's
// conditional update and are not reported.
func (h *SweepExpiredHandler) Handle(ctx context.Context, cmd SweepExpiredCommand) (*dto.Sweep, error) {
	result := &dto.Sweep{ExpiredIDs: []string{}}
	if h.Lock != nil {
		release, ok, err := h.Lock.TryLock(ctx, h.lockKey(), h.lockTTL())
		if err != nil {
			return nil, err
		}
		if !ok {
			h.logger().DebugContext(ctx, "sweep skipped, lock held elsewhere")
			return result, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				h.logger().WarnContext(ctx, "release sweep lock", "err", err)
			}
		}()
	}

	now := h.now()
	batch := h.batchSize()
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		size := batch
		if cmd.Limit > 0 {
			left := cmd.Limit - result.ExpiredCount
			if left <= 0 {
				break
			}
			if left < size {
				size = left
			}
		}
		expired, err := h.Reservations.ExpireStale(ctx, now, size)
		if err != nil {
			return result, err
		}
		for _, r := range expired {
			result.ExpiredIDs = append(result.ExpiredIDs, string(r.ID))
			if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, r.Drain()); err != nil {
				h.logger().ErrorContext(ctx, "record expiry events", "reservation_id", r.ID, "err", err)
			}
		}
		result.ExpiredCount = len(result.ExpiredIDs)
		// A short batch may only mean rows were lost to concurrent
		// confirmations, so drain until nothing transitions.
		if len(expired) == 0 {
			break
		}
	}

	h.metrics().ReservationsExpired(result.ExpiredCount)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("expired_count", result.ExpiredCount))
	if result.ExpiredCount > 0 {
		h.logger().InfoContext(ctx, "expired stale reservations", "count", result.ExpiredCount)
	}
	return result, nil
}

func (h *SweepExpiredHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *SweepExpiredHandler) batchSize() int {
	if h.BatchSize > 0 {
		return h.BatchSize
	}
	return defaultBatchSize
}

func (h *SweepExpiredHandler) lockKey() string {
	if h.LockKey != "" {
		return h.LockKey
	}
	return defaultLockKey
}

func (h *SweepExpiredHandler) lockTTL() time.Duration {
	if h.LockTTL > 0 {
		return h.LockTTL
	}
	return time.Minute
}

func (h *SweepExpiredHandler) metrics() policies.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return policies.NopMetrics{}
}

func (h *SweepExpiredHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[SweepExpiredCommand, *dto.Sweep] = (*SweepExpiredHandler)(nil)
