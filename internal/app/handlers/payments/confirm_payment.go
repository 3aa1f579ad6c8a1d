package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/outbox"
	"rentme-reservations/internal/app/policies"
	domainpayments "rentme-reservations/internal/domain/payments"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

const confirmPaymentKey = "payments.confirm"

// Outcomes reported in acknowledgements and metrics.
const (
	OutcomeProcessed    = "processed"
	OutcomeAlreadyPaid  = "already_paid"
	OutcomeDeduped      = "deduped"
	OutcomeIgnored      = "ignored"
	OutcomeError        = "error"
	OutcomeBadSignature = "bad_signature"
	OutcomeMalformed    = "malformed"
)

// ConfirmPaymentCommand carries a raw provider callback and its signature.
type ConfirmPaymentCommand struct {
	Payload   []byte
	Signature string
}

func (c ConfirmPaymentCommand) Key() string { return confirmPaymentKey }

type ConfirmPaymentHandler struct {
	Verifier     domainpayments.Verifier
	Ledger       domainpayments.Ledger
	Reservations reservation.Repository
	Messaging    policies.MessagingPort
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Metrics      policies.Metrics
	Now          func() time.Time
	Logger       *slog.Logger
}

// Handle reconciles one provider notification.
//
// A nil ack means nothing was consumed and the caller should let the provider
// retry. Once the ledger entry exists the ack is always returned, possibly
// together with the error that was recorded on the entry.
func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*dto.PaymentAck, error) {
	n, err := h.Verifier.Verify(cmd.Payload, cmd.Signature)
	if err == nil {
		err = n.Validate()
	}
	if err != nil {
		if errors.Is(err, domainpayments.ErrBadSignature) {
			h.metrics().PaymentNotification(OutcomeBadSignature)
		} else {
			h.metrics().PaymentNotification(OutcomeMalformed)
		}
		return nil, err
	}
	now := h.now()
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = now
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("event_id", n.EventID), attribute.String("event_type", n.Type))

	inserted, err := h.Ledger.Begin(ctx, domainpayments.LedgerEntry{
		EventID:       n.EventID,
		Type:          n.Type,
		Status:        domainpayments.LedgerProcessing,
		ReservationID: n.ReservationID,
		Payload:       n.Raw,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: record notification %s: %w", n.EventID, err)
	}
	if !inserted {
		h.metrics().PaymentNotification(OutcomeDeduped)
		h.logger().InfoContext(ctx, "payment notification already recorded", "event_id", n.EventID)
		return &dto.PaymentAck{OK: true, Deduped: true, Outcome: OutcomeDeduped}, nil
	}

	if !n.Actionable() {
		h.finish(ctx, n.EventID, domainpayments.LedgerIgnored, n.ReservationID, "")
		h.metrics().PaymentNotification(OutcomeIgnored)
		return &dto.PaymentAck{OK: true, Ignored: true, Outcome: OutcomeIgnored}, nil
	}

	ack, err := h.reconcile(ctx, n, now)
	if err != nil {
		h.finish(ctx, n.EventID, domainpayments.LedgerError, ack.ReservationID, err.Error())
		h.metrics().PaymentNotification(OutcomeError)
		h.logger().ErrorContext(ctx, "payment reconciliation failed",
			"event_id", n.EventID,
			"reservation_id", ack.ReservationID,
			"err", err,
		)
		return ack, err
	}
	h.finish(ctx, n.EventID, domainpayments.LedgerProcessed, ack.ReservationID, "")
	h.metrics().PaymentNotification(ack.Outcome)
	return ack, nil
}

// reconcile resolves the reservation and drives it to confirmed/paid. The
// returned ack is never nil.
func (h *ConfirmPaymentHandler) reconcile(ctx context.Context, n domainpayments.Notification, now time.Time) (*dto.PaymentAck, error) {
	ack := &dto.PaymentAck{OK: true, Outcome: OutcomeError}
	r, err := h.resolve(ctx, n)
	if err != nil {
		return ack, err
	}
	ack.ReservationID = string(r.ID)

	if r.IsPaid() {
		ack.AlreadyPaid = true
		ack.Outcome = OutcomeAlreadyPaid
		h.ensureFirstMessage(ctx, r, now)
		return ack, nil
	}
	if !r.Confirmable() {
		return ack, fmt.Errorf("%w: reservation %s is %s", domainpayments.ErrConfirmationLost, r.ID, r.State())
	}
	applied, err := h.Reservations.MarkConfirmed(ctx, r.ID, n.PaymentIntentID, now)
	if err != nil {
		return ack, fmt.Errorf("payments: confirm reservation %s: %w", r.ID, err)
	}
	if !applied {
		// A concurrent delivery may have confirmed it between the read and the update.
		current, err := h.Reservations.ByID(ctx, r.ID)
		if err != nil {
			return ack, fmt.Errorf("payments: reload reservation %s: %w", r.ID, err)
		}
		if current.IsPaid() {
			ack.AlreadyPaid = true
			ack.Outcome = OutcomeAlreadyPaid
			h.ensureFirstMessage(ctx, current, now)
			return ack, nil
		}
		return ack, fmt.Errorf("%w: reservation %s is %s", domainpayments.ErrConfirmationLost, r.ID, current.State())
	}
	if err := r.Confirm(n.PaymentIntentID, now); err == nil {
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, r.Drain()); err != nil {
			h.logger().ErrorContext(ctx, "record confirmation events", "reservation_id", r.ID, "err", err)
		}
	}
	h.logger().InfoContext(ctx, "reservation confirmed", "reservation_id", r.ID, "event_id", n.EventID)
	ack.Outcome = OutcomeProcessed
	h.ensureFirstMessage(ctx, r, now)
	return ack, nil
}

// resolve prefers the reservation id from metadata and falls back to the
// checkout session id stored at checkout time.
func (h *ConfirmPaymentHandler) resolve(ctx context.Context, n domainpayments.Notification) (*reservation.Reservation, error) {
	var (
		r   *reservation.Reservation
		err = reservation.ErrNotFound
	)
	if n.ReservationID != "" {
		r, err = h.Reservations.ByID(ctx, reservation.ID(n.ReservationID))
	}
	if errors.Is(err, reservation.ErrNotFound) && n.SessionID != "" {
		r, err = h.Reservations.ByCheckoutSession(ctx, n.SessionID)
	}
	if errors.Is(err, reservation.ErrNotFound) {
		return nil, fmt.Errorf("%w: reservation=%q session=%q", domainpayments.ErrReservationNotResolved, n.ReservationID, n.SessionID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ensureFirstMessage posts the system message that opens the renter/host
// conversation, at most once per reservation.
func (h *ConfirmPaymentHandler) ensureFirstMessage(ctx context.Context, r *reservation.Reservation, now time.Time) {
	if h.Messaging == nil {
		return
	}
	reservationID := string(r.ID)
	exists, err := h.Messaging.HasAnyMessage(ctx, reservationID)
	if err != nil {
		h.logger().WarnContext(ctx, "check reservation messages", "reservation_id", r.ID, "err", err)
		return
	}
	if exists {
		return
	}
	err = h.Messaging.CreateMessage(ctx, policies.Message{
		ReservationID: reservationID,
		From:          r.RenterID,
		To:            string(r.HostID),
		Body: fmt.Sprintf("Reservation confirmed for %s to %s.",
			r.Range.Start.Format(domainrange.DateLayout), r.Range.End.Format(domainrange.DateLayout)),
		System:    true,
		CreatedAt: now,
	})
	switch {
	case err == nil, errors.Is(err, policies.ErrMessageExists):
	default:
		h.logger().WarnContext(ctx, "create first message", "reservation_id", r.ID, "err", err)
	}
}

func (h *ConfirmPaymentHandler) finish(ctx context.Context, eventID string, status domainpayments.LedgerStatus, reservationID, detail string) {
	if err := h.Ledger.Finish(ctx, eventID, status, reservationID, detail, h.now()); err != nil {
		h.logger().ErrorContext(ctx, "finalize payment ledger entry", "event_id", eventID, "status", status, "err", err)
	}
}

func (h *ConfirmPaymentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *ConfirmPaymentHandler) metrics() policies.Metrics {
	if h.Metrics != nil {
		return h.Metrics
	}
	return policies.NopMetrics{}
}

func (h *ConfirmPaymentHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[ConfirmPaymentCommand, *dto.PaymentAck] = (*ConfirmPaymentHandler)(nil)
