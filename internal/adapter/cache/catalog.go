package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/redis/go-redis/v9"
)

const catalogKey = "rewards:catalog"

type CatalogCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, baseTTL: ttl}
}

func (c *CatalogCache) GetCatalog(ctx context.Context) ([]domain.RewardView, error) {
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var views []domain.RewardView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, fmt.Errorf("unmarshal catalog failed: %w", err)
	}
	return views, nil
}

func (c *CatalogCache) SetCatalog(ctx context.Context, views []domain.RewardView) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}

	if err := c.client.Set(ctx, catalogKey, data, c.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// ttl spreads expiry over up to a fifth of the base TTL so that replicas do
// not all reload at once.
func (c *CatalogCache) ttl() time.Duration {
	spread := int64(c.baseTTL / 5)
	if spread <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + time.Duration(rand.Int63n(spread))
}
