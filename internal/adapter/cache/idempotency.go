package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// IdempotencyStore keeps one redis key per request key. An empty value marks
// a request that is still running and lives for lease only, so a crashed
// request frees its key quickly. Complete stores the result for ttl.
type IdempotencyStore struct {
	client *redis.Client
	lease  time.Duration
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, lease, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, lease: lease, ttl: ttl}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (string, bool, error) {
	k := idempotencyPrefix + key

	// the key can expire between SETNX and GET, so try twice
	for i := 0; i < 2; i++ {
		claimed, err := s.client.SetNX(ctx, k, "", s.lease).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis setnx failed: %w", err)
		}
		if claimed {
			return "", true, nil
		}

		result, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("redis get failed: %w", err)
		}
		return result, false, nil
	}
	return "", false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, result string) error {
	k := idempotencyPrefix + key

	if err := s.client.Set(ctx, k, result, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
