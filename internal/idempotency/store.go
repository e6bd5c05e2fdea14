// Package idempotency remembers webhook responses by idempotency key so a
// replayed delivery gets the original answer without touching state again.
package idempotency

import (
	"context"
	"encoding/json"
	"time"
)

// Record is a stored webhook response
type Record struct {
	Status   int             `json:"status"`
	Body     json.RawMessage `json:"body"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store keeps records for a bounded time
type Store interface {
	// Get returns the record for key, or nil when absent or expired
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, rec *Record) error
	Close() error
}
