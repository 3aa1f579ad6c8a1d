package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	paymentsapp "rentme-reservations/internal/app/handlers/payments"
	domainpayments "rentme-reservations/internal/domain/payments"
)

// SignatureHeader carries the provider signature of a relayed notification.
const SignatureHeader = "stripe-signature"

// NotificationHandler feeds relayed provider notifications into the payment
// reconciliation command.
type NotificationHandler struct {
	Commands commands.Bus
	Retries  int
	Backoff  time.Duration
	Logger   *slog.Logger
}

// Handle returns an error only when the notification was not recorded and
// should be redelivered. Rejected payloads are dropped.
func (h NotificationHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	cmd := paymentsapp.ConfirmPaymentCommand{
		Payload:   msg.Value,
		Signature: consumerHeaderCarrier(msg.Headers).Get(SignatureHeader),
	}
	var lastErr error
	for attempt := 0; attempt <= h.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.backoff(attempt)):
			}
		}
		ack, err := commands.Dispatch[paymentsapp.ConfirmPaymentCommand, *dto.PaymentAck](ctx, h.Commands, cmd)
		if ack != nil {
			if err != nil {
				h.logger().WarnContext(ctx, "relayed notification recorded with error", "reservation_id", ack.ReservationID, "err", err)
			}
			return nil
		}
		if errors.Is(err, domainpayments.ErrBadSignature) || errors.Is(err, domainpayments.ErrMalformedNotification) {
			h.logger().WarnContext(ctx, "relayed notification rejected", "offset", msg.Offset, "err", err)
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (h NotificationHandler) backoff(attempt int) time.Duration {
	base := h.Backoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return base * time.Duration(attempt)
}

func (h NotificationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = NotificationHandler{}
