package http

import (
	"context"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
)

// HTTPAddr distinguishes the management API's listen address in fx's
// type-based graph from the gRPC and WS listen addresses.
type HTTPAddr string

var Module = fx.Module("management-http",
	fx.Provide(NewManagementHandler),
	fx.Invoke(registerServer),
)

func registerServer(lc fx.Lifecycle, logger *slog.Logger, handler *ManagementHandler, addr HTTPAddr) {
	srv := &http.Server{Addr: string(addr), Handler: handler.Router()}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP_SERVE_FAILED", "err", err)
				}
			}()
			logger.Info("HTTP_SERVER_STARTED", "addr", string(addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
