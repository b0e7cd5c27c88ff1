package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
)

func TestSiteCache_DisabledWithoutClient(t *testing.T) {
	t.Parallel()

	c := NewSiteCache(NewSiteCacheParams{Logger: zap.NewNop().Sugar()})
	c.Set(context.Background(), "token", []gsc.Site{{SiteURL: "https://example.com/"}})

	_, ok := c.Get(context.Background(), "token")
	require.False(t, ok)

	var nilCache *SiteCache
	_, ok = nilCache.Get(context.Background(), "token")
	require.False(t, ok)
}

func TestSiteListKey_HidesToken(t *testing.T) {
	t.Parallel()

	k := siteListKey("ya29.secret")
	require.NotContains(t, k, "secret")
	require.Equal(t, k, siteListKey("ya29.secret"))
	require.NotEqual(t, k, siteListKey("ya29.other"))
	require.Len(t, k, len("gsc:sites:")+64)
}
