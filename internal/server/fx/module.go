package fx

import (
	"go.uber.org/fx"

	"search-analytics-node/internal/server"
)

var Module = fx.Module(
	"http-server",
	fx.Provide(server.NewHTTPServer),
	fx.Invoke(RegisterHTTPServerLifecycle),
)
