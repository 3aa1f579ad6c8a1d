package policies

import (
	"context"
	"time"
)

// Locker grants a short-lived exclusive lease. ok is false when another
// holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
