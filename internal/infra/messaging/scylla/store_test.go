package scylla

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"rentme-reservations/internal/app/policies"
)

// fakeCQL keeps the two tables in memory and can fail message inserts.
type fakeCQL struct {
	mu          sync.Mutex
	threads     map[string]gocql.UUID
	messages    map[string]map[gocql.UUID]string
	failInserts int
}

func newFakeCQL() *fakeCQL {
	return &fakeCQL{threads: map[string]gocql.UUID{}, messages: map[string]map[gocql.UUID]string{}}
}

func (f *fakeCQL) exec(_ context.Context, stmt string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stmt != insertMessageCQL {
		return errors.New("unexpected statement: " + stmt)
	}
	if f.failInserts > 0 {
		f.failInserts--
		return errors.New("write timeout")
	}
	reservationID := args[0].(string)
	if f.messages[reservationID] == nil {
		f.messages[reservationID] = map[gocql.UUID]string{}
	}
	f.messages[reservationID][args[1].(gocql.UUID)] = args[4].(string)
	return nil
}

func (f *fakeCQL) scan(_ context.Context, stmt string, args []any, dest ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.messages[args[0].(string)]
	switch stmt {
	case anyMessageCQL:
		for id := range rows {
			*dest[0].(*gocql.UUID) = id
			return nil
		}
	case messageByIDCQL:
		id := args[1].(gocql.UUID)
		if _, ok := rows[id]; ok {
			*dest[0].(*gocql.UUID) = id
			return nil
		}
	default:
		return errors.New("unexpected statement: " + stmt)
	}
	return gocql.ErrNotFound
}

func (f *fakeCQL) cas(_ context.Context, stmt string, args []any, existing map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stmt != claimThreadCQL {
		return false, errors.New("unexpected statement: " + stmt)
	}
	reservationID := args[0].(string)
	if first, ok := f.threads[reservationID]; ok {
		existing["reservation_id"] = reservationID
		existing["first_message_id"] = first
		return false, nil
	}
	f.threads[reservationID] = args[1].(gocql.UUID)
	return true, nil
}

func (f *fakeCQL) count(reservationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[reservationID])
}

func systemMessage(at time.Time) policies.Message {
	return policies.Message{ReservationID: "res-1", From: "renter-1", To: "host-1", Body: "Reservation confirmed.", System: true, CreatedAt: at}
}

func TestCreateMessageRepairsThreadAfterFailedInsert(t *testing.T) {
	db := newFakeCQL()
	db.failInserts = 1
	s := &Store{db: db}
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := s.CreateMessage(ctx, systemMessage(at)); err == nil {
		t.Fatal("Expected the failed insert to surface")
	}
	has, err := s.HasAnyMessage(ctx, "res-1")
	if err != nil || has {
		t.Fatalf("Expected no message after failed insert, got %v (%v)", has, err)
	}

	if err := s.CreateMessage(ctx, systemMessage(at.Add(time.Minute))); err != nil {
		t.Fatalf("Expected retry to write the first message, got %v", err)
	}
	if has, _ := s.HasAnyMessage(ctx, "res-1"); !has {
		t.Fatal("Expected first message after retry")
	}
	if err := s.CreateMessage(ctx, systemMessage(at.Add(2*time.Minute))); !errors.Is(err, policies.ErrMessageExists) {
		t.Errorf("Expected ErrMessageExists once written, got %v", err)
	}
	if got := db.count("res-1"); got != 1 {
		t.Errorf("Expected exactly one message, got %d", got)
	}
}

func TestCreateMessageConcurrentSystemMessages(t *testing.T) {
	db := newFakeCQL()
	s := &Store{db: db}
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateMessage(context.Background(), systemMessage(at.Add(time.Duration(i)*time.Millisecond)))
			if err != nil && !errors.Is(err, policies.ErrMessageExists) {
				t.Errorf("CreateMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if got := db.count("res-1"); got != 1 {
		t.Errorf("Expected exactly one message, got %d", got)
	}
}

func TestCreateMessageAppendsUserMessages(t *testing.T) {
	db := newFakeCQL()
	s := &Store{db: db}
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := s.CreateMessage(ctx, systemMessage(at)); err != nil {
		t.Fatalf("system: %v", err)
	}
	reply := policies.Message{ReservationID: "res-1", From: "host-1", To: "renter-1", Body: "Welcome", CreatedAt: at.Add(time.Hour)}
	if err := s.CreateMessage(ctx, reply); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got := db.count("res-1"); got != 2 {
		t.Errorf("Expected two messages, got %d", got)
	}
}
