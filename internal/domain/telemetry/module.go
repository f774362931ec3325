package telemetry

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("telemetry",
	fx.Provide(NewCollector),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, c *Collector) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go c.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return c.Shutdown()
		},
	})
}
