package fx

import (
	"go.uber.org/fx"

	"search-analytics-node/internal/authenticator"
)

var Module = fx.Module(
	"authenticator",
	fx.Provide(authenticator.NewService),
)
