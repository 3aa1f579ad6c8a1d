package ginserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentme-reservations/internal/infra/config"
	"rentme-reservations/internal/infra/obs"
)

var errNoAck = errors.New("ginserver: notification was not acknowledged")

type AvailabilityHTTP interface {
	Check(c *gin.Context)
}

type ReservationHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Checkout(c *gin.Context)
}

type PaymentHTTP interface {
	Webhook(c *gin.Context)
}

type SweepHTTP interface {
	Run(c *gin.Context)
}

type Handlers struct {
	Availability AvailabilityHTTP
	Reservations ReservationHTTP
	Payments     PaymentHTTP
	Sweep        SweepHTTP
	// SweepToken guards the scheduler route; empty rejects every call.
	SweepToken string
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine without touching the global gin mode.
func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", UserIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	router.GET("/metrics", obsMW.Metrics.Handler())

	api := router.Group("/api/v1")
	if h.Availability != nil {
		api.GET("/listings/:id/availability", h.Availability.Check)
	}
	if h.Reservations != nil {
		api.POST("/reservations", h.Reservations.Create)
		api.GET("/reservations/:id", h.Reservations.Get)
		api.POST("/reservations/:id/checkout", h.Reservations.Checkout)
	}
	if h.Payments != nil {
		api.POST("/payments/webhook", h.Payments.Webhook)
	}
	if h.Sweep != nil {
		router.POST("/internal/v1/sweeps", requireSchedulerToken(h.SweepToken), h.Sweep.Run)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
