package fx

import (
	"search-analytics-node/internal/app/runs"
	"search-analytics-node/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"runs",
	fx.Provide(router.AsRoute(runs.NewGetByIDHandler)),
)
