package availability

import (
	"errors"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/payments"
	"rentme-reservations/internal/domain/pricing"
	"rentme-reservations/internal/domain/reservation"
	"rentme-reservations/internal/domain/shared/daterange"
)

// Public reason codes returned to callers of the reservation API.
const (
	CodeSelfBooking        = "SELF_BOOKING_FORBIDDEN"
	CodeInvalidRange       = "INVALID_RANGE"
	CodeConflict           = "CONFLICT"
	CodeMinDuration        = "MIN_DURATION"
	CodeInvalidBillingUnit = "INVALID_BILLING_UNIT"
	CodeInvalidTotal       = "INVALID_TOTAL"
	CodeListingNotFound    = "LISTING_NOT_FOUND"
	CodeNotFound           = "NOT_FOUND"
	CodeRenterRequired     = "RENTER_REQUIRED"
	CodeHoldExpired        = "HOLD_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodePaymentInFlight    = "PAYMENT_IN_FLIGHT"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeBadSignature       = "BAD_SIGNATURE"
	CodeMalformed          = "MALFORMED_NOTIFICATION"
	CodeIntegrity          = "INTEGRITY"
	CodeInternal           = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{reservation.ErrSelfBooking, CodeSelfBooking},
	{daterange.ErrInvalidRange, CodeInvalidRange},
	{daterange.ErrInvalidDate, CodeInvalidRange},
	{ErrConflict, CodeConflict},
	{pricing.ErrMinDuration, CodeMinDuration},
	{listings.ErrInvalidBillingUnit, CodeInvalidBillingUnit},
	{pricing.ErrInvalidTotal, CodeInvalidTotal},
	{listings.ErrListingNotFound, CodeListingNotFound},
	{reservation.ErrNotFound, CodeNotFound},
	{reservation.ErrRenterRequired, CodeRenterRequired},
	{reservation.ErrHoldExpired, CodeHoldExpired},
	{reservation.ErrNotRenter, CodeForbidden},
	{reservation.ErrNotParticipant, CodeForbidden},
	{reservation.ErrPaymentInFlight, CodePaymentInFlight},
	{reservation.ErrInvalidTransition, CodeInvalidTransition},
	{payments.ErrBadSignature, CodeBadSignature},
	{payments.ErrMalformedNotification, CodeMalformed},
	{payments.ErrReservationNotResolved, CodeIntegrity},
	{payments.ErrConfirmationLost, CodeIntegrity},
}

// Code maps a domain error onto its public reason code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
