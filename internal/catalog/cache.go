package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "catalog:pricing:"

// Cache holds recently priced products in Redis so a checkout recomputation
// does not hit Postgres for every cart mutation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetProducts fetches cached products in one round trip and reports which ids
// were not found.
func (c *Cache) GetProducts(ctx context.Context, ids []string) (map[string]Product, []string, error) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil, ids, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKeyPrefix + id
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, err
	}
	found := make(map[string]Product, len(ids))
	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok || raw == "" {
			missing = append(missing, ids[i])
			continue
		}
		var product Product
		if err := json.Unmarshal([]byte(raw), &product); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = product
	}
	return found, missing, nil
}

// SetProduct stores one product with the configured TTL.
func (c *Cache) SetProduct(ctx context.Context, product Product) error {
	if c == nil || c.client == nil || c.ttl <= 0 || product.ID == "" {
		return nil
	}
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+product.ID, data, c.ttl).Err()
}
