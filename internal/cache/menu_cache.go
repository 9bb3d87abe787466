package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platepay/platepay-api/internal/config"
	"github.com/platepay/platepay-api/internal/models"
	"github.com/platepay/platepay-api/pkg/logger"
)

const (
	menuKeyPrefix = "menu:"
	menuTTL       = 5 * time.Minute
)

// MenuCache is a read-through cache for public menu listings. Cache errors
// degrade to the database; they are logged, never surfaced.
type MenuCache struct {
	client *redis.Client
	logger logger.Logger
}

// NewMenuCache creates a new MenuCache
func NewMenuCache(cfg config.RedisConfig, logger logger.Logger) *MenuCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &MenuCache{
		client: client,
		logger: logger,
	}
}

// Ping checks connectivity
func (c *MenuCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client
func (c *MenuCache) Close() error {
	return c.client.Close()
}

func menuKey(category string) string {
	if category == "" {
		return menuKeyPrefix + "all"
	}
	return menuKeyPrefix + category
}

// Get returns the cached listing for a category, or (nil, false) on miss
func (c *MenuCache) Get(ctx context.Context, category string) ([]*models.MenuItem, bool) {
	data, err := c.client.Get(ctx, menuKey(category)).Bytes()

	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Menu cache read failed", "error", err, "category", category)
		}
		return nil, false
	}

	var items []*models.MenuItem

	if err := json.Unmarshal(data, &items); err != nil {
		c.logger.Warn("Menu cache entry corrupt, discarding", "error", err, "category", category)
		return nil, false
	}

	return items, true
}

// Set stores a listing for a category
func (c *MenuCache) Set(ctx context.Context, category string, items []*models.MenuItem) {
	data, err := json.Marshal(items)

	if err != nil {
		c.logger.Warn("Menu cache encode failed", "error", err, "category", category)
		return
	}

	if err := c.client.Set(ctx, menuKey(category), data, menuTTL).Err(); err != nil {
		c.logger.Warn("Menu cache write failed", "error", err, "category", category)
	}
}

// Invalidate drops every cached menu listing
func (c *MenuCache) Invalidate(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, menuKeyPrefix+"*", 100).Iterator()

	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		c.logger.Warn("Menu cache scan failed", "error", err)
		return
	}

	if len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Menu cache invalidation failed", "error", err)
	}
}
