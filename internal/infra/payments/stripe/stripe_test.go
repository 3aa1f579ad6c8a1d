package stripepay

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v76/webhook"

	"rentme-reservations/internal/app/policies"
	domainpayments "rentme-reservations/internal/domain/payments"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: testSecret})
	return signed.Header, signed.Payload
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "payment_status": "paid",
    "payment_intent": "pi_1",
    "client_reference_id": "res-fallback",
    "metadata": {"reservation_id": "res-1"}
  }}
}`

func TestVerifierDecodesCheckoutCompleted(t *testing.T) {
	header, payload := sign(t, completedEvent)
	n, err := Verifier{Secret: testSecret}.Verify(payload, header)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n.EventID != "evt_1" || n.SessionID != "cs_1" || n.ReservationID != "res-1" || n.PaymentIntentID != "pi_1" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if !n.Actionable() {
		t.Error("Expected paid checkout to be actionable")
	}
}

func TestVerifierRejectsForgedSignature(t *testing.T) {
	_, payload := sign(t, completedEvent)
	_, err := Verifier{Secret: testSecret}.Verify(payload, "t=1,v1=deadbeef")
	if !errors.Is(err, domainpayments.ErrBadSignature) {
		t.Fatalf("Expected ErrBadSignature, got %v", err)
	}
	other, _ := sign(t, completedEvent)
	if _, err := (Verifier{Secret: "whsec_other"}).Verify(payload, other); !errors.Is(err, domainpayments.ErrBadSignature) {
		t.Errorf("Expected wrong secret to fail, got %v", err)
	}
}

func TestVerifierPassesOtherEventsThrough(t *testing.T) {
	header, payload := sign(t, `{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{}}}`)
	n, err := Verifier{Secret: testSecret}.Verify(payload, header)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n.Actionable() || n.Type != "charge.refunded" {
		t.Errorf("Expected non-actionable event, got %+v", n)
	}
}

func TestSessionParams(t *testing.T) {
	p := sessionParams(CheckoutConfig{
		SuccessURL: "https://app/reservations/{RESERVATION_ID}?paid=1",
		CancelURL:  "https://app/reservations/{RESERVATION_ID}",
	}, policies.CheckoutRequest{ReservationID: "res-1", Amount: 3000, Currency: "USD", Description: "Loft"})
	if *p.SuccessURL != "https://app/reservations/res-1?paid=1" || *p.ClientReferenceID != "res-1" {
		t.Errorf("unexpected urls: %s %s", *p.SuccessURL, *p.ClientReferenceID)
	}
	if p.Metadata["reservation_id"] != "res-1" {
		t.Errorf("Expected reservation metadata, got %v", p.Metadata)
	}
	item := p.LineItems[0].PriceData
	if *item.UnitAmount != 3000 || *item.Currency != "usd" {
		t.Errorf("unexpected price data: %d %s", *item.UnitAmount, *item.Currency)
	}
}
