package fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"search-analytics-node/cache"
	"search-analytics-node/internal/inspection"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/properties"
	"search-analytics-node/internal/query"
	"search-analytics-node/internal/store"
)

var Module = fx.Module(
	"nodes",
	fx.Provide(
		store.NewStore,
		query.NewService,
		inspection.NewService,
		newPropertiesService,

		node.AsNode(node.NewQuery),
		node.AsNode(node.NewURLInspection),
		node.AsNode(node.NewPropertyDetails),

		node.NewRegistry,
		node.NewExecutor,
	),
)

func newPropertiesService(logger *zap.SugaredLogger, sites *cache.SiteCache) *properties.Service {
	return properties.NewService(logger, sites)
}
