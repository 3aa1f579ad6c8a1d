package redisx

import "fmt"

const (
	// Sweep leader lease: lock:{name} -> holder token
	KeyLock = "lock:%s"

	// Replayable command result: idem:{command key}:{client key} -> JSON record
	KeyIdempotency = "idem:%s"
)

func lockKey(name string) string { return fmt.Sprintf(KeyLock, name) }

func idempotencyKey(key string) string { return fmt.Sprintf(KeyIdempotency, key) }
