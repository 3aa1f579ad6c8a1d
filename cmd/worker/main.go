package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/handlers/sweeper"
	"rentme-reservations/internal/infra/bootstrap"
	"rentme-reservations/internal/infra/broker/kafka"
	"rentme-reservations/internal/infra/config"
	"rentme-reservations/internal/infra/obs"
	infraoutbox "rentme-reservations/internal/infra/outbox"
	stripepay "rentme-reservations/internal/infra/payments/stripe"
)

const serviceName = "rentme-reservations-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env).With("process", "worker")
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

	buses := bootstrap.NewBuses(cfg, stores, bootstrap.Deps{
		Logger:   logger,
		Metrics:  metrics,
		Verifier: stripepay.Verifier{Secret: cfg.StripeWebhookSecret},
		Checkout: stripepay.Disabled{},
	})

	healthSrv := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runSweeper(gctx, cfg, buses.Commands, logger) })

	if cfg.KafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		relay := &infraoutbox.Worker{
			Relay:       stores.Relay,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			ID:          workerID(),
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
		g.Go(func() error { return relay.Run(gctx) })

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.NotificationHandler{
			Commands: buses.Commands,
			Retries:  len(cfg.RetryBackoff),
			Backoff:  firstBackoff(cfg.RetryBackoff),
			Logger:   logger,
		}, logger)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return consumer.Run(gctx, []string{cfg.KafkaNotificationsTopic}) })
		g.Go(func() error {
			<-gctx.Done()
			return consumer.Close()
		})
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox relay and notification consumer disabled")
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err, "addr", cfg.GRPCAddr)
		os.Exit(1)
	}
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	logger.Info("worker started", "grpc_addr", cfg.GRPCAddr, "driver", cfg.StoreDriver, "kafka", cfg.KafkaEnabled())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// runSweeper expires stale holds on every tick. Failures are logged and the
// next tick retries.
func runSweeper(ctx context.Context, cfg config.Config, bus commands.Bus, logger *slog.Logger) error {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		if _, err := commands.Dispatch[sweeper.SweepExpiredCommand, *dto.Sweep](ctx, bus, sweeper.SweepExpiredCommand{}); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

func firstBackoff(backoff []time.Duration) time.Duration {
	if len(backoff) == 0 {
		return time.Second
	}
	return backoff[0]
}
