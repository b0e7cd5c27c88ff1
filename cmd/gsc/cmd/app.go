package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"search-analytics-node/config"
	appfx "search-analytics-node/internal/app/fx"
	"search-analytics-node/internal/authenticator"
	authenticatorfx "search-analytics-node/internal/authenticator/fx"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/store"
)

type runtime struct {
	executor *node.Executor
	auth     *authenticator.Service
	store    *store.Store

	app *fx.App
}

func startRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	rt := &runtime{}
	rt.app = fx.New(
		fx.NopLogger,
		appfx.Module,
		authenticatorfx.Module,
		fx.Decorate(func(cfg *config.Config) *config.Config {
			cfg.Log.Level = opts.logLevel
			return cfg
		}),
		fx.Populate(&rt.executor, &rt.auth, &rt.store),
	)
	if err := rt.app.Err(); err != nil {
		return nil, fmt.Errorf("wire application: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := rt.app.Start(startCtx); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) close() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rt.app.Stop(stopCtx)
}
