package fx

import (
	"go.uber.org/fx"

	"search-analytics-node/internal/app/health"
	"search-analytics-node/internal/router"
)

var Module = fx.Options(
	fx.Provide(router.AsRoute(health.NewHandler)),
)
