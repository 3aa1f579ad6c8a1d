package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	reservationsapp "rentme-reservations/internal/app/handlers/reservations"
	"rentme-reservations/internal/app/queries"
)

type ReservationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

type createReservationRequest struct {
	ListingID string `json:"listing_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h ReservationHandler) Create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BAD_REQUEST"})
		return
	}
	cmd := reservationsapp.CreateReservationCommand{
		ListingID:       req.ListingID,
		RenterID:        userID(c),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[reservationsapp.CreateReservationCommand, *dto.Reservation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ReservationHandler) Get(c *gin.Context) {
	query := reservationsapp.GetReservationQuery{ReservationID: c.Param("id"), UserID: userID(c)}
	result, err := queries.Ask[reservationsapp.GetReservationQuery, *dto.Reservation](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReservationHandler) Checkout(c *gin.Context) {
	cmd := reservationsapp.StartCheckoutCommand{ReservationID: c.Param("id"), RenterID: userID(c)}
	result, err := commands.Dispatch[reservationsapp.StartCheckoutCommand, *dto.Checkout](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ ReservationHTTP = ReservationHandler{}
