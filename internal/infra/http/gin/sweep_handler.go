package ginserver

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/handlers/sweeper"
)

// SchedulerTokenHeader authenticates the external scheduler on internal routes.
const SchedulerTokenHeader = "X-Scheduler-Token"

// requireSchedulerToken rejects callers that do not present token. An empty
// token disables the route.
func requireSchedulerToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "scheduler endpoint disabled", Code: "FORBIDDEN"})
			return
		}
		got := c.GetHeader(SchedulerTokenHeader)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "scheduler token required", Code: "UNAUTHORIZED"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "invalid scheduler token", Code: "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

// SweepHandler lets an external scheduler trigger the expiration sweep.
type SweepHandler struct {
	Commands commands.Bus
}

func (h SweepHandler) Run(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer", "code": "BAD_REQUEST"})
			return
		}
		limit = v
	}
	result, err := commands.Dispatch[sweeper.SweepExpiredCommand, *dto.Sweep](c.Request.Context(), h.Commands, sweeper.SweepExpiredCommand{Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ SweepHTTP = SweepHandler{}
