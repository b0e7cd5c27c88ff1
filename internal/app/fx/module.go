package fx

import (
	"go.uber.org/fx"

	cachefx "search-analytics-node/cache/fx"
	dbfx "search-analytics-node/db/fx"
	nodefx "search-analytics-node/internal/node/fx"
)

// Module is everything a node execution needs: config, logging, the workflow
// store, the site-list cache and the node registry.
var Module = fx.Options(
	CoreAppOptions,
	dbfx.Module,
	cachefx.Module,
	nodefx.Module,
)
