package fx

import (
	"search-analytics-node/db"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"sqlx-workflow-db",
	fx.Provide(db.NewDB),
)
