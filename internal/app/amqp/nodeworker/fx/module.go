package fx

import (
	"context"

	"search-analytics-node/internal/app/amqp/nodeworker"
	"search-analytics-node/internal/pkg/amqpclient"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module(
	"amqp-nodeworker",
	fx.Provide(
		amqpclient.NewAMQP,
		fx.Annotate(
			nodeworker.NewExecuteHandler,
			fx.As(new(nodeworker.Handler)),
		),
		nodeworker.NewConsumer,
	),
	fx.Invoke(registerLifecycleHooks),
)

type hooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Consumer  *nodeworker.Consumer
	Logger    *zap.SugaredLogger
}

func registerLifecycleHooks(p hooksParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Infow("nodeworker_starting")
			return p.Consumer.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Infow("nodeworker_stopping")
			return p.Consumer.Stop(ctx)
		},
	})
}
