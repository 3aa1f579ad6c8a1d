package memory

import (
	"context"
	"sync"
	"time"

	"rentme-reservations/internal/app/policies"
)

// Locker is a process-local lease table for single-instance deployments.
type Locker struct {
	mu     sync.Mutex
	seq    uint64
	leases map[string]lease
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocker() *Locker {
	return &Locker{leases: make(map[string]lease)}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	current, held := l.leases[key]
	if held && now.Before(current.expires) {
		return nil, false, nil
	}
	l.seq++
	token := l.seq
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[key].token == token {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}

var _ policies.Locker = (*Locker)(nil)
