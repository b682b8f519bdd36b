// Package cache defines the byte-level cache the session store sits on.
// Two backends exist: memory (dev/test) and redis (production).
package cache

import (
	"context"
	"time"
)

// Cache is a minimal TTL'd key-value store.
type Cache interface {
	// Get returns the value and whether the key exists.
	Get(k string) ([]byte, bool)

	// Set stores a value. ttl <= 0 means the backend default.
	Set(k string, v []byte, ttl time.Duration)

	// Delete removes a key. Deleting a missing key is a no-op.
	Delete(k string)
}

// Pinger is implemented by backends with a remote connection; readiness
// checks use it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}
