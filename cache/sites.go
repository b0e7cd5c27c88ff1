package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
)

const siteListTTL = 10 * time.Minute

// SiteCache keeps site lists keyed by a hash of the access token. A nil
// client turns every call into a miss.
type SiteCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

type NewSiteCacheParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Logger *zap.SugaredLogger
}

func NewSiteCache(p NewSiteCacheParams) *SiteCache {
	return &SiteCache{client: p.Client, ttl: siteListTTL, logger: p.Logger}
}

func siteListKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "gsc:sites:" + hex.EncodeToString(sum[:])
}

func (c *SiteCache) Get(ctx context.Context, token string) ([]gsc.Site, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, siteListKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warnw("site_cache_get_failed", "err", err)
		return nil, false
	}

	var sites []gsc.Site
	if err := json.Unmarshal(raw, &sites); err != nil {
		c.logger.Warnw("site_cache_decode_failed", "err", err)
		return nil, false
	}
	return sites, true
}

func (c *SiteCache) Set(ctx context.Context, token string, sites []gsc.Site) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(sites)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, siteListKey(token), raw, c.ttl).Err(); err != nil {
		c.logger.Warnw("site_cache_set_failed", "err", err)
	}
}
