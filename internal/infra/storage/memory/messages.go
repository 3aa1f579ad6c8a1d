package memory

import (
	"context"
	"sync"

	"rentme-reservations/internal/app/policies"
)

// MessageStore enforces one first message per reservation.
type MessageStore struct {
	mu    sync.Mutex
	items map[string][]policies.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{items: make(map[string][]policies.Message)}
}

func (s *MessageStore) HasAnyMessage(ctx context.Context, reservationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[reservationID]) > 0, nil
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg policies.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.System && len(s.items[msg.ReservationID]) > 0 {
		return policies.ErrMessageExists
	}
	s.items[msg.ReservationID] = append(s.items[msg.ReservationID], msg)
	return nil
}

// Messages returns a copy of the thread for reservationID.
func (s *MessageStore) Messages(reservationID string) []policies.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]policies.Message(nil), s.items[reservationID]...)
}

var _ policies.MessagingPort = (*MessageStore)(nil)
