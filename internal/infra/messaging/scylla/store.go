package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"rentme-reservations/internal/app/policies"
)

var errNoSession = errors.New("scylla session not initialized")

const (
	claimThreadCQL   = `INSERT INTO reservation_threads (reservation_id, first_message_id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`
	insertMessageCQL = `INSERT INTO reservation_messages (reservation_id, message_id, sender_id, recipient_id, body, system, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	anyMessageCQL    = `SELECT message_id FROM reservation_messages WHERE reservation_id = ? LIMIT 1`
	messageByIDCQL   = `SELECT message_id FROM reservation_messages WHERE reservation_id = ? AND message_id = ?`
)

// cql is the slice of a gocql session the store needs.
type cql interface {
	exec(ctx context.Context, stmt string, args ...any) error
	scan(ctx context.Context, stmt string, args []any, dest ...any) error
	cas(ctx context.Context, stmt string, args []any, existing map[string]any) (bool, error)
}

type gocqlSession struct{ s *gocql.Session }

func (g gocqlSession) exec(ctx context.Context, stmt string, args ...any) error {
	return g.s.Query(stmt, args...).WithContext(ctx).Exec()
}

func (g gocqlSession) scan(ctx context.Context, stmt string, args []any, dest ...any) error {
	return g.s.Query(stmt, args...).WithContext(ctx).Scan(dest...)
}

func (g gocqlSession) cas(ctx context.Context, stmt string, args []any, existing map[string]any) (bool, error) {
	return g.s.Query(stmt, args...).WithContext(ctx).MapScanCAS(existing)
}

// Store keeps reservation threads in Scylla. The first message of a thread is
// claimed with a lightweight transaction on reservation_threads, so two
// confirmations racing for the same reservation create it once. The claim
// records the first message id, and a later call repairs a claimed thread
// whose message row was never written.
type Store struct {
	db     cql
	logger *slog.Logger
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	s := &Store{logger: logger}
	if session != nil {
		s.db = gocqlSession{s: session}
	}
	return s
}

func (s *Store) HasAnyMessage(ctx context.Context, reservationID string) (bool, error) {
	if s.db == nil {
		return false, errNoSession
	}
	var id gocql.UUID
	err := s.db.scan(ctx, anyMessageCQL, []any{reservationID}, &id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg policies.Message) error {
	if s.db == nil {
		return errNoSession
	}
	now := msg.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	id := gocql.UUIDFromTime(now)

	claimed, firstID, err := s.claimThread(ctx, msg.ReservationID, id, now)
	if err != nil {
		return err
	}
	if msg.System && !claimed {
		written, err := s.messageExists(ctx, msg.ReservationID, firstID)
		if err != nil {
			return err
		}
		if written {
			return policies.ErrMessageExists
		}
		// Upserting under the claimed id keeps concurrent repairs to one row.
		id = firstID
		if s.logger != nil {
			s.logger.InfoContext(ctx, "repairing first message", "reservation_id", msg.ReservationID)
		}
	}
	err = s.db.exec(ctx, insertMessageCQL,
		msg.ReservationID, id, msg.From, msg.To, msg.Body, msg.System, now)
	if err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "message stored", "reservation_id", msg.ReservationID, "system", msg.System)
	}
	return nil
}

// claimThread reports whether this call created the thread row, and the
// thread's first message id either way.
func (s *Store) claimThread(ctx context.Context, reservationID string, firstID gocql.UUID, at time.Time) (bool, gocql.UUID, error) {
	existing := map[string]any{}
	applied, err := s.db.cas(ctx, claimThreadCQL, []any{reservationID, firstID, at}, existing)
	if err != nil {
		return false, gocql.UUID{}, err
	}
	if applied {
		return true, firstID, nil
	}
	current, ok := existing["first_message_id"].(gocql.UUID)
	if !ok {
		return false, gocql.UUID{}, fmt.Errorf("scylla: thread %s has no first message id", reservationID)
	}
	return false, current, nil
}

func (s *Store) messageExists(ctx context.Context, reservationID string, messageID gocql.UUID) (bool, error) {
	var id gocql.UUID
	err := s.db.scan(ctx, messageByIDCQL, []any{reservationID, messageID}, &id)
	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ policies.MessagingPort = (*Store)(nil)
