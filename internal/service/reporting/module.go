package reporting

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("reporting",
	fx.Provide(
		func() Store { return NewMemStore() },
		func() LockStore { return NewMemLockStore() },
		fx.Annotate(NewLogSender, fx.As(new(ReportSender))),
		NewScheduler,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, scheduler *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go scheduler.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return nil
		},
	})
}
