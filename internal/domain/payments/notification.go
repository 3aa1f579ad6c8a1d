package payments

import (
	"errors"
	"strings"
	"time"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	OutcomePaid            = "paid"
	MetadataReservationID  = "reservation_id"
)

var (
	ErrBadSignature           = errors.New("payments: notification signature is invalid")
	ErrMalformedNotification  = errors.New("payments: notification payload is malformed")
	ErrReservationNotResolved = errors.New("payments: no reservation matches the notification")
	ErrConfirmationLost       = errors.New("payments: confirmation matched no pending reservation")
	ErrEntryNotFound          = errors.New("payments: ledger entry not found")
)

// Notification is a verified, decoded provider event.
type Notification struct {
	EventID         string
	Type            string
	PaymentStatus   string
	ReservationID   string
	SessionID       string
	PaymentIntentID string
	Raw             []byte
	ReceivedAt      time.Time
}

func (n Notification) Validate() error {
	if strings.TrimSpace(n.EventID) == "" || strings.TrimSpace(n.Type) == "" {
		return ErrMalformedNotification
	}
	return nil
}

// Actionable reports a completed checkout whose payment succeeded.
func (n Notification) Actionable() bool {
	return n.Type == EventCheckoutCompleted && n.PaymentStatus == OutcomePaid
}

// Verifier authenticates a raw provider callback and decodes it.
type Verifier interface {
	Verify(payload []byte, signature string) (Notification, error)
}

// IsIntegrity reports errors that indicate a state-consistency anomaly rather
// than a transient failure.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrReservationNotResolved) || errors.Is(err, ErrConfirmationLost)
}
