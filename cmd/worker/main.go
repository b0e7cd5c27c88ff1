package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	nodeworkerfx "search-analytics-node/internal/app/amqp/nodeworker/fx"
	appfx "search-analytics-node/internal/app/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		nodeworkerfx.Module,
	)

	app.Run()
}
