package memory

import (
	"context"
	"sync"
	"time"

	"rentme-reservations/internal/domain/payments"
)

// PaymentLedger is the in-memory notification ledger keyed by event id.
type PaymentLedger struct {
	mu      sync.Mutex
	entries map[string]payments.LedgerEntry
}

func NewPaymentLedger() *PaymentLedger {
	return &PaymentLedger{entries: make(map[string]payments.LedgerEntry)}
}

func (l *PaymentLedger) Begin(ctx context.Context, entry payments.LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[entry.EventID]; exists {
		return false, nil
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	l.entries[entry.EventID] = entry
	return true, nil
}

func (l *PaymentLedger) Finish(ctx context.Context, eventID string, status payments.LedgerStatus, reservationID, detail string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok {
		return payments.ErrEntryNotFound
	}
	entry.Status = status
	if reservationID != "" {
		entry.ReservationID = reservationID
	}
	entry.Detail = detail
	entry.UpdatedAt = at
	l.entries[eventID] = entry
	return nil
}

func (l *PaymentLedger) ByEventID(ctx context.Context, eventID string) (*payments.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok {
		return nil, payments.ErrEntryNotFound
	}
	return &entry, nil
}

var _ payments.Ledger = (*PaymentLedger)(nil)
