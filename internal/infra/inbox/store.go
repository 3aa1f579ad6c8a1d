package inbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentme-reservations/internal/domain/payments"
)

// Store is the Mongo payment notification ledger. The unique event_id index
// turns a redelivered notification into a duplicate key error.
type Store struct {
	col *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{col: db.Collection("app_payment_inbox")}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
	})
	return err
}

func (s *Store) Begin(ctx context.Context, entry payments.LedgerEntry) (bool, error) {
	_, err := s.col.InsertOne(ctx, newEntryDocument(entry))
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) Finish(ctx context.Context, eventID string, status payments.LedgerStatus, reservationID, detail string, at time.Time) error {
	set := bson.M{"status": string(status), "detail": detail, "updated_at": at.UTC()}
	if reservationID != "" {
		set["reservation_id"] = reservationID
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"event_id": eventID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return payments.ErrEntryNotFound
	}
	return nil
}

func (s *Store) ByEventID(ctx context.Context, eventID string) (*payments.LedgerEntry, error) {
	var doc entryDocument
	if err := s.col.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payments.ErrEntryNotFound
		}
		return nil, err
	}
	entry := doc.toEntry()
	return &entry, nil
}

type entryDocument struct {
	EventID       string    `bson:"event_id"`
	Type          string    `bson:"type"`
	Status        string    `bson:"status"`
	ReservationID string    `bson:"reservation_id,omitempty"`
	Detail        string    `bson:"detail,omitempty"`
	Payload       []byte    `bson:"payload"`
	CreatedAt     time.Time `bson:"received_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func newEntryDocument(e payments.LedgerEntry) entryDocument {
	return entryDocument{
		EventID:       e.EventID,
		Type:          e.Type,
		Status:        string(e.Status),
		ReservationID: e.ReservationID,
		Detail:        e.Detail,
		Payload:       e.Payload,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

func (d entryDocument) toEntry() payments.LedgerEntry {
	return payments.LedgerEntry{
		EventID:       d.EventID,
		Type:          d.Type,
		Status:        payments.LedgerStatus(d.Status),
		ReservationID: d.ReservationID,
		Detail:        d.Detail,
		Payload:       d.Payload,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

var _ payments.Ledger = (*Store)(nil)
