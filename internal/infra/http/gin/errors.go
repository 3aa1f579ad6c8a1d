package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	domainavailability "rentme-reservations/internal/domain/availability"
)

// UserIDHeader carries the authenticated caller, set by the gateway.
const UserIDHeader = "X-User-ID"

type errorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	Reason      string `json:"reason,omitempty"`
	RemainingMs *int64 `json:"remaining_ms,omitempty"`
}

func statusForCode(code string) int {
	switch code {
	case domainavailability.CodeInvalidRange,
		domainavailability.CodeBadSignature,
		domainavailability.CodeMalformed:
		return http.StatusBadRequest
	case domainavailability.CodeRenterRequired:
		return http.StatusUnauthorized
	case domainavailability.CodeSelfBooking, domainavailability.CodeForbidden:
		return http.StatusForbidden
	case domainavailability.CodeNotFound, domainavailability.CodeListingNotFound:
		return http.StatusNotFound
	case domainavailability.CodeConflict,
		domainavailability.CodeHoldExpired,
		domainavailability.CodePaymentInFlight,
		domainavailability.CodeInvalidTransition:
		return http.StatusConflict
	case domainavailability.CodeMinDuration,
		domainavailability.CodeInvalidBillingUnit,
		domainavailability.CodeInvalidTotal:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func newErrorResponse(err error) (int, errorResponse) {
	code := domainavailability.Code(err)
	body := errorResponse{Error: err.Error(), Code: code}
	var conflict *domainavailability.ConflictError
	if errors.As(err, &conflict) {
		body.Reason = string(conflict.Reason)
		if conflict.Reason == domainavailability.ReasonOnHold {
			ms := conflict.Remaining.Milliseconds()
			body.RemainingMs = &ms
		}
	}
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	return status, body
}

func writeError(c *gin.Context, err error) {
	status, body := newErrorResponse(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func userID(c *gin.Context) string {
	return c.GetHeader(UserIDHeader)
}
