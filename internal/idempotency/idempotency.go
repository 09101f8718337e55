// Package idempotency deduplicates retried requests by client-supplied key.
// A key is first reserved as pending; once the operation finishes its encoded
// result is stored so a retry replays it instead of running again.
package idempotency

import (
	"context"
	"time"
)

type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
)

type Record struct {
	State       State  `json:"state"`
	ContentType string `json:"contentType,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
}

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	// Reserve claims key. When it returns false the key was already taken
	// and the existing record is returned instead.
	Reserve(ctx context.Context, key string, ttl time.Duration) (Record, bool, error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Release forgets a reservation whose operation failed, so the client
	// can try again.
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to the caller and operation so two users cannot
// collide on the same value.
func Key(userID, operation, clientKey string) string {
	return userID + ":" + operation + ":" + clientKey
}
