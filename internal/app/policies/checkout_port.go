package policies

import "context"

type CheckoutRequest struct {
	ReservationID string
	RenterID      string
	ListingID     string
	Description   string
	Amount        int64
	Currency      string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

// CheckoutPort creates hosted payment sessions at the payment provider.
type CheckoutPort interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}
