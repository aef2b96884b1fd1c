package dedup

import (
	"go.uber.org/fx"
)

// Module provides the dedup engine via fx
var Module = fx.Module("dedup",
	fx.Provide(
		NewEngine,
	),
)
