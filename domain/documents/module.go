package documents

import (
	"context"

	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/eventbus"
)

// Module provides documents dependencies via fx
var Module = fx.Module("documents",
	fx.Provide(
		NewRepository,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RegisterEventHandlers),
	fx.Invoke(registerConsumerLifecycle),
)

// registerConsumerLifecycle starts the event consumer after all handlers are
// subscribed. Partition loops outlive the fx start context.
func registerConsumerLifecycle(lc fx.Lifecycle, consumer *eventbus.Consumer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return consumer.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return consumer.Stop(ctx)
		},
	})
}
