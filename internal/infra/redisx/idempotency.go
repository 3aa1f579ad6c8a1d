package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rentme-reservations/internal/app/middleware"
)

// IdempotencyStore caches replayable command results with a Redis TTL.
type IdempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

type idempotencyValue struct {
	Payload    []byte    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return middleware.IdempotencyRecord{}, false, err
	}
	var v idempotencyValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{Key: key, Payload: v.Payload, OccurredAt: v.OccurredAt}, true, nil
}

// Save keeps the first result stored under key; a concurrent duplicate does
// not overwrite it.
func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord, ttl time.Duration) error {
	raw, err := json.Marshal(idempotencyValue{Payload: rec.Payload, OccurredAt: rec.OccurredAt})
	if err != nil {
		return err
	}
	return s.rdb.SetNX(ctx, idempotencyKey(rec.Key), raw, ttl).Err()
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
