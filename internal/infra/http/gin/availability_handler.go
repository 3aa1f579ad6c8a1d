package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-reservations/internal/app/dto"
	availabilityapp "rentme-reservations/internal/app/handlers/availability"
	"rentme-reservations/internal/app/queries"
)

type AvailabilityHandler struct {
	Queries queries.Bus
}

// Check returns the listing's blocking ranges and, when start and end are
// given, whether that candidate range could be booked now.
func (h AvailabilityHandler) Check(c *gin.Context) {
	query := availabilityapp.CheckAvailabilityQuery{
		ListingID: c.Param("id"),
		Start:     c.Query("start"),
		End:       c.Query("end"),
	}
	result, err := queries.Ask[availabilityapp.CheckAvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AvailabilityHTTP = AvailabilityHandler{}
