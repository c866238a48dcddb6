package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/tableside/billing/pkg/config"
	"github.com/tableside/billing/pkg/types"
)

const (
	statusKeyPrefix = "billing:subscription:"
	statusTTL       = 5 * time.Minute
)

// Cache is a read-through cache for subscription status lookups. When no
// redis address is configured every operation is a no-op, so callers never
// branch on whether caching is enabled.
type Cache struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func New(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Cache {
	if cfg.Redis.Addr == "" {
		log.Infow("subscription status cache disabled")
		return &Cache{log: log}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Cache{client: client, log: log}
}

// GetSubscriptionInfo returns the cached view for userID, or nil on miss.
func (c *Cache) GetSubscriptionInfo(ctx context.Context, userID string) *types.SubscriptionInfo {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, statusKeyPrefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warnw("cache_get_failed", "user_id", userID, "err", err)
		}
		return nil
	}
	var info types.SubscriptionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	return &info
}

func (c *Cache) SetSubscriptionInfo(ctx context.Context, userID string, info *types.SubscriptionInfo) {
	if c.client == nil || info == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKeyPrefix+userID, raw, statusTTL).Err(); err != nil {
		c.log.Warnw("cache_set_failed", "user_id", userID, "err", err)
	}
}

// Invalidate drops the cached view after a reconciled state change.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statusKeyPrefix+userID).Err(); err != nil {
		c.log.Warnw("cache_invalidate_failed", "user_id", userID, "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(New),
)
