package fx

import (
	"go.uber.org/fx"

	"search-analytics-node/internal/app/metrics"
	"search-analytics-node/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(metrics.NewHandler)),
)
