package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/policies"
	"rentme-reservations/internal/app/queries"
	"rentme-reservations/internal/domain/availability"
)

// Observe logs every command, counts its result and wraps it in a span.
func Observe(logger *slog.Logger, metrics policies.Metrics, tracer trace.Tracer) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = policies.NopMetrics{}
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if tracer != nil {
				var span trace.Span
				ctx, span = tracer.Start(ctx, "command "+cmd.Key(), trace.WithAttributes(attribute.String("command", cmd.Key())))
				defer span.End()
				res, err := observeCommand(ctx, logger, metrics, next, cmd)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return res, err
			}
			return observeCommand(ctx, logger, metrics, next, cmd)
		})
	}
}

func observeCommand(ctx context.Context, logger *slog.Logger, metrics policies.Metrics, next commands.Bus, cmd commands.Command) (any, error) {
	start := time.Now()
	res, err := next.Dispatch(ctx, cmd)
	result := resultLabel(err)
	metrics.CommandHandled(cmd.Key(), result)
	attrs := []any{"command", cmd.Key(), "result", result, "duration", time.Since(start)}
	switch {
	case err == nil:
		logger.InfoContext(ctx, "command handled", attrs...)
	case result == strings.ToLower(availability.CodeInternal), result == strings.ToLower(availability.CodeIntegrity):
		logger.ErrorContext(ctx, "command failed", append(attrs, "err", err)...)
	default:
		logger.WarnContext(ctx, "command rejected", append(attrs, "err", err)...)
	}
	return res, err
}

// ObserveQueries wraps queries in a span and logs failures.
func ObserveQueries(logger *slog.Logger, tracer trace.Tracer) QueryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if tracer != nil {
				var span trace.Span
				ctx, span = tracer.Start(ctx, "query "+q.Key())
				defer span.End()
			}
			res, err := next.Ask(ctx, q)
			if err != nil && availability.Code(err) == availability.CodeInternal {
				logger.ErrorContext(ctx, "query failed", "query", q.Key(), "err", err)
			}
			return res, err
		})
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(availability.Code(err))
}
