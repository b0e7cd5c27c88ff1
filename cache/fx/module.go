package fx

import (
	"search-analytics-node/cache"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"redis",
	fx.Provide(
		cache.NewRedis,
		cache.NewSiteCache,
	),
)
