package stripepay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	domainpayments "rentme-reservations/internal/domain/payments"
)

// Verifier checks the Stripe-Signature header and decodes checkout events.
type Verifier struct {
	Secret string
}

func (v Verifier) Verify(payload []byte, signature string) (domainpayments.Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return domainpayments.Notification{}, fmt.Errorf("%w: %v", domainpayments.ErrBadSignature, err)
		}
		return domainpayments.Notification{}, fmt.Errorf("%w: %v", domainpayments.ErrMalformedNotification, err)
	}
	n := domainpayments.Notification{
		EventID: event.ID,
		Type:    string(event.Type),
		Raw:     payload,
	}
	if string(event.Type) != domainpayments.EventCheckoutCompleted || event.Data == nil {
		return n, nil
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domainpayments.Notification{}, fmt.Errorf("%w: checkout session: %v", domainpayments.ErrMalformedNotification, err)
	}
	n.SessionID = session.ID
	n.PaymentStatus = string(session.PaymentStatus)
	n.ReservationID = session.Metadata[domainpayments.MetadataReservationID]
	if n.ReservationID == "" {
		n.ReservationID = session.ClientReferenceID
	}
	if session.PaymentIntent != nil {
		n.PaymentIntentID = session.PaymentIntent.ID
	}
	return n, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

var _ domainpayments.Verifier = Verifier{}
