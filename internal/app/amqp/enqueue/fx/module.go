package fx

import (
	"search-analytics-node/internal/app/amqp/enqueue"
	"search-analytics-node/internal/pkg/amqpclient"
	"search-analytics-node/internal/router"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		amqpclient.NewAMQP,
		router.AsRoute(enqueue.NewHandler),
	),
)
