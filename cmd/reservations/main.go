package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentme-reservations/internal/app/policies"
	"rentme-reservations/internal/infra/bootstrap"
	"rentme-reservations/internal/infra/config"
	ginserver "rentme-reservations/internal/infra/http/gin"
	"rentme-reservations/internal/infra/obs"
	stripepay "rentme-reservations/internal/infra/payments/stripe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	obs.InstallPropagator()
	metrics := obs.NewMetrics()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("stores unavailable", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Warn("closing stores", "error", err)
		}
	}()

	if _, err := bootstrap.LoadListingFixtures(ctx, cfg.ListingsFixtures, stores.Listings, logger); err != nil {
		logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingsFixtures)
	}

	buses := bootstrap.NewBuses(cfg, stores, bootstrap.Deps{
		Logger:   logger,
		Metrics:  metrics,
		Verifier: stripepay.Verifier{Secret: cfg.StripeWebhookSecret},
		Checkout: checkoutPort(cfg, logger),
	})

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Metrics: metrics}, obs.HealthHandlers{
		Checks: stores.Checks,
	}, ginserver.Handlers{
		Availability: ginserver.AvailabilityHandler{Queries: buses.Queries},
		Reservations: ginserver.ReservationHandler{Commands: buses.Commands, Queries: buses.Queries},
		Payments:     ginserver.PaymentHandler{Commands: buses.Commands},
		Sweep:        ginserver.SweepHandler{Commands: buses.Commands},
		SweepToken:   cfg.SweepToken,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "driver", cfg.StoreDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

func checkoutPort(cfg config.Config, logger *slog.Logger) policies.CheckoutPort {
	if !cfg.StripeEnabled() {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout disabled")
		return stripepay.Disabled{}
	}
	return stripepay.NewCheckout(stripepay.CheckoutConfig{
		SecretKey:  cfg.StripeSecretKey,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})
}
