package fx

import (
	"search-analytics-node/internal/app/nodes"
	"search-analytics-node/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"nodes-api",
	fx.Provide(router.AsRoute(nodes.NewExecuteHandler)),
)
