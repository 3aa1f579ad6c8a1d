package middleware

import (
	"context"
	"fmt"
	"strings"

	"rentme-reservations/internal/app/commands"
	"rentme-reservations/internal/app/queries"
	"rentme-reservations/internal/domain/reservation"
)

// ErrActorRequired rejects a user-facing message that carries no caller id.
var ErrActorRequired = fmt.Errorf("middleware: caller identity required: %w", reservation.ErrRenterRequired)

// ActorMessage is implemented by commands and queries issued on behalf of a user.
type ActorMessage interface {
	ActorID() string
}

func requireActor(message any) error {
	m, ok := message.(ActorMessage)
	if !ok {
		return nil
	}
	if strings.TrimSpace(m.ActorID()) == "" {
		return ErrActorRequired
	}
	return nil
}

func RequireActor() CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := requireActor(cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryRequireActor() QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := requireActor(q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
