package ginserver

import (
	"io"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	paymentsapp "rentme-reservations/internal/app/handlers/payments"
)

const (
	SignatureHeader = "Stripe-Signature"
	maxWebhookBody  = 1 << 16
)

type PaymentHandler struct {
	Commands commands.Bus
}

type webhookResponse struct {
	Received bool `json:"received"`
	*dto.PaymentAck
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Webhook accepts provider notifications. Once the delivery is recorded in the
// ledger the provider always gets a 200, even when reconciliation failed, so
// it stops retrying; a delivery that never reached the ledger gets a 5xx.
func (h PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "read body", "code": "UNAVAILABLE"})
		return
	}
	cmd := paymentsapp.ConfirmPaymentCommand{Payload: payload, Signature: c.GetHeader(SignatureHeader)}
	ack, err := commands.Dispatch[paymentsapp.ConfirmPaymentCommand, *dto.PaymentAck](c.Request.Context(), h.Commands, cmd)
	if ack == nil {
		if err == nil {
			err = errNoAck
		}
		writeError(c, err)
		return
	}
	resp := webhookResponse{Received: true, PaymentAck: ack}
	if err != nil {
		_, body := newErrorResponse(err)
		resp.Error, resp.Code = body.Error, body.Code
	}
	c.JSON(http.StatusOK, resp)
}

var _ PaymentHTTP = PaymentHandler{}
