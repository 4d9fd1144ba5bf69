// Package idempotency marks work as seen in redis so at-least-once delivery
// never becomes at-least-twice processing.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// EventKey keys by the change-event id carried in every notifier payload.
func (s *Store) EventKey(eventID string) string {
	return fmt.Sprintf("idem:event:%s", eventID)
}

// RequestKey keys by a client-supplied token, used to make submission
// endpoints double-click safe.
func (s *Store) RequestKey(scope, token string) string {
	return fmt.Sprintf("idem:req:%s:%s", scope, token)
}

// Seen atomically records key and reports whether it was already present.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
