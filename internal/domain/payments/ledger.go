package payments

import (
	"context"
	"time"
)

type LedgerStatus string

const (
	LedgerProcessing LedgerStatus = "processing"
	LedgerProcessed  LedgerStatus = "processed"
	LedgerIgnored    LedgerStatus = "ignored"
	LedgerError      LedgerStatus = "error"
)

// LedgerEntry records one inbound provider event. EventID is unique.
type LedgerEntry struct {
	EventID       string
	Type          string
	Status        LedgerStatus
	ReservationID string
	Detail        string
	Payload       []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ledger is the idempotency gate for provider notifications.
type Ledger interface {
	// Begin inserts a processing entry. inserted is false when the event id
	// was already recorded.
	Begin(ctx context.Context, entry LedgerEntry) (inserted bool, err error)
	Finish(ctx context.Context, eventID string, status LedgerStatus, reservationID, detail string, at time.Time) error
	ByEventID(ctx context.Context, eventID string) (*LedgerEntry, error)
}
