package memory

import (
	"context"
	"sync"
	"time"

	"rentme-reservations/internal/app/middleware"
)

type idempotencyItem struct {
	record  middleware.IdempotencyRecord
	expires time.Time
}

// IdempotencyStore keeps replayable command results until their TTL passes.
type IdempotencyStore struct {
	mu    sync.RWMutex
	items map[string]idempotencyItem
	now   func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]idempotencyItem), now: time.Now}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || (!item.expires.IsZero() && s.now().After(item.expires)) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return item.record, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := idempotencyItem{record: rec}
	if ttl > 0 {
		item.expires = s.now().Add(ttl)
	}
	s.items[rec.Key] = item
	return nil
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
