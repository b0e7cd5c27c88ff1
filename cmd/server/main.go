package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	enqueuefx "search-analytics-node/internal/app/amqp/enqueue/fx"
	appfx "search-analytics-node/internal/app/fx"
	healthfx "search-analytics-node/internal/app/health/fx"
	metricsfx "search-analytics-node/internal/app/metrics/fx"
	nodesfx "search-analytics-node/internal/app/nodes/fx"
	runsfx "search-analytics-node/internal/app/runs/fx"
	routerfx "search-analytics-node/internal/router/fx"
	serverfx "search-analytics-node/internal/server/fx"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		appfx.Module,
		routerfx.CoreRouterOptions,
		serverfx.Module,
		healthfx.Module,
		metricsfx.Module,
		nodesfx.Module,
		runsfx.Module,
		enqueuefx.Module,
	)

	app.Run()
}
