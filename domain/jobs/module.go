package jobs

import (
	"context"

	"go.uber.org/fx"
)

// Module provides jobs dependencies via fx
var Module = fx.Module("jobs",
	fx.Provide(
		NewRepository,
		NewService,
		NewStages,
		NewEngine,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(registerEngineLifecycle),
)

func registerEngineLifecycle(lc fx.Lifecycle, engine *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Workers outlive the fx start context, which is cancelled
			// once startup finishes.
			return engine.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return engine.Stop(ctx)
		},
	})
}
