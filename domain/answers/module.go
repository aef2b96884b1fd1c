package answers

import (
	"go.uber.org/fx"
)

// Module provides answers dependencies via fx
var Module = fx.Module("answers",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
