package policies

import (
	"context"
	"errors"
	"time"
)

// ErrMessageExists is returned when the first message for a reservation was
// already created by a concurrent writer.
var ErrMessageExists = errors.New("messaging: first message already exists")

type Message struct {
	ReservationID string
	From          string
	To            string
	Body          string
	System        bool
	CreatedAt     time.Time
}

// MessagingPort is the conversation store owned by the messaging service.
type MessagingPort interface {
	HasAnyMessage(ctx context.Context, reservationID string) (bool, error)
	CreateMessage(ctx context.Context, msg Message) error
}
