package ws

import (
	"context"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
)

// WSAddr distinguishes the websocket listen address in fx's type-based
// graph from the gRPC and HTTP listen addresses.
type WSAddr string

var Module = fx.Module("delivery-ws",
	fx.Provide(NewWSHandler),
	fx.Invoke(registerServer),
)

func registerServer(lc fx.Lifecycle, logger *slog.Logger, handler *WSHandler, addr WSAddr) {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)

	srv := &http.Server{Addr: string(addr), Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("WS_SERVE_FAILED", "err", err)
				}
			}()
			logger.Info("WS_SERVER_STARTED", "addr", string(addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
