package stripepay

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"rentme-reservations/internal/app/policies"
	domainpayments "rentme-reservations/internal/domain/payments"
)

// reservationPlaceholder is replaced in redirect URLs with the reservation id.
const reservationPlaceholder = "{RESERVATION_ID}"

var ErrCheckoutDisabled = errors.New("stripe: checkout is not configured")

type CheckoutConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

// Checkout opens hosted Checkout sessions. The reservation id travels in the
// session metadata and as client reference so the webhook can resolve it.
type Checkout struct {
	api *client.API
	cfg CheckoutConfig
}

func NewCheckout(cfg CheckoutConfig) *Checkout {
	return &Checkout{api: client.New(cfg.SecretKey, nil), cfg: cfg}
}

// NewCheckoutWithBackends routes API calls through custom backends, e.g. a
// stripe-mock server.
func NewCheckoutWithBackends(cfg CheckoutConfig, backends *stripe.Backends) *Checkout {
	return &Checkout{api: client.New(cfg.SecretKey, backends), cfg: cfg}
}

func (c *Checkout) CreateSession(ctx context.Context, req policies.CheckoutRequest) (policies.CheckoutSession, error) {
	params := sessionParams(c.cfg, req)
	params.Context = ctx
	params.SetIdempotencyKey("checkout:" + req.ReservationID)
	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return policies.CheckoutSession{}, err
	}
	out := policies.CheckoutSession{ID: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

func sessionParams(cfg CheckoutConfig, req policies.CheckoutRequest) *stripe.CheckoutSessionParams {
	metadata := map[string]string{
		domainpayments.MetadataReservationID: req.ReservationID,
		"listing_id":                         req.ListingID,
		"renter_id":                          req.RenterID,
	}
	return &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(redirectURL(cfg.SuccessURL, req.ReservationID)),
		CancelURL:         stripe.String(redirectURL(cfg.CancelURL, req.ReservationID)),
		ClientReferenceID: stripe.String(req.ReservationID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
}

func redirectURL(template, reservationID string) string {
	return strings.ReplaceAll(template, reservationPlaceholder, reservationID)
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateSession(context.Context, policies.CheckoutRequest) (policies.CheckoutSession, error) {
	return policies.CheckoutSession{}, ErrCheckoutDisabled
}

var _ policies.CheckoutPort = (*Checkout)(nil)
var _ policies.CheckoutPort = Disabled{}
