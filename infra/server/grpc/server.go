// Package grpc wraps google.golang.org/grpc's server with a panic-recovery
// interceptor chain, OTel stats handler, and fx lifecycle wiring.
package grpc

import (
	"context"
	"log/slog"
	"net"

	recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/webitel/im-delivery-service/infra/server/grpc/interceptors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server wraps a *grpc.Server together with the listener it serves on, so
// fx.Lifecycle can start/stop it as one unit.
type Server struct {
	Server *grpc.Server
	addr   string
	logger *slog.Logger
}

// NewServer builds the gRPC server. auth may be nil, in which case the
// stream auth interceptor is skipped entirely (no node-token requirement) -
// appropriate for local/dev wiring where no token list has been configured.
func NewServer(lc fx.Lifecycle, logger *slog.Logger, addr string, auth interceptors.NodeAuthenticator) *Server {
	recoveryOpts := []recovery.Option{
		recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
			logger.Error("PANIC_RECOVERED", "panic", p)
			return status.Error(codes.Internal, "internal error")
		}),
	}

	streamInterceptors := []grpc.StreamServerInterceptor{recovery.StreamServerInterceptor(recoveryOpts...)}
	if auth != nil {
		streamInterceptors = append(streamInterceptors, interceptors.NewStreamAuthInterceptor(auth))
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(recovery.UnaryServerInterceptor(recoveryOpts...)),
		grpc.ChainStreamInterceptor(streamInterceptors...),
	)

	srv := &Server{Server: s, addr: addr, logger: logger}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if serveErr := s.Serve(lis); serveErr != nil {
					logger.Error("GRPC_SERVE_FAILED", "err", serveErr)
				}
			}()
			logger.Info("GRPC_SERVER_STARTED", "addr", addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.GracefulStop()
			return nil
		},
	})

	return srv
}

// NewServerFromConfig is the fx.Provide-friendly constructor, pulling the
// listen address from config rather than taking it as a bare string. auth
// is optional (nil disables stream authentication).
func NewServerFromConfig(lc fx.Lifecycle, logger *slog.Logger, addr GRPCAddr, auth interceptors.NodeAuthenticator) *Server {
	return NewServer(lc, logger, string(addr), auth)
}

// GRPCAddr distinguishes the grpc listen address in fx's type-based
// dependency graph from the HTTP/WS listen addresses, which are provided
// elsewhere as their own named string types.
type GRPCAddr string
