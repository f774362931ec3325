package cmd

import (
	"log/slog"

	"github.com/webitel/im-delivery-service/config"
	grpcsrv "github.com/webitel/im-delivery-service/infra/server/grpc"
	"github.com/webitel/im-delivery-service/infra/server/grpc/interceptors"
	"github.com/webitel/im-delivery-service/internal/domain/registry"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry/sink"
	amqphandler "github.com/webitel/im-delivery-service/internal/handler/amqp"
	grpchandler "github.com/webitel/im-delivery-service/internal/handler/grpc"
	httphandler "github.com/webitel/im-delivery-service/internal/handler/http"
	wshandler "github.com/webitel/im-delivery-service/internal/handler/ws"
	"github.com/webitel/im-delivery-service/internal/service/reporting"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
)

// NewApp assembles the full telemetry collection/distribution service:
// the collector goroutine, the report scheduler, and every transport
// (gRPC, HTTP management API, websocket dashboard, AMQP command bus).
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideMeterProvider,
			ProvideMeter,
			ProvideBridgedLogger,
			func(cfg *config.Config) grpcsrv.GRPCAddr { return grpcsrv.GRPCAddr(cfg.Server.GRPCAddr) },
			func(cfg *config.Config) httphandler.HTTPAddr { return httphandler.HTTPAddr(cfg.Server.HTTPAddr) },
			func(cfg *config.Config) wshandler.WSAddr { return wshandler.WSAddr(cfg.Server.WSAddr) },
			provideNodeAuthenticator,
			grpcsrv.NewServerFromConfig,
		),

		telemetry.Module,
		registry.Module,
		reporting.Module,
		grpchandler.Module,
		httphandler.Module,
		wshandler.Module,
		amqphandler.Module,
		amqphandler.DecoratorOption,

		fx.Invoke(registerExportSubscribers),
	)
}

// provideNodeAuthenticator builds the gRPC stream auth interceptor's
// NodeAuthenticator from configured tokens, or returns nil (no stream
// auth) when none are configured.
func provideNodeAuthenticator(cfg *config.Config) interceptors.NodeAuthenticator {
	if len(cfg.Server.NodeTokens) == 0 {
		return nil
	}
	return interceptors.NewStaticTokenAuthenticator(cfg.Server.NodeTokens)
}

// exportSubscriberID is the fixed subscriber id the OTel metrics/log export
// sinks register under - always-on, not tied to any viewer connection.
const exportSubscriberID = "otel-export"

// registerExportSubscribers attaches the always-on OTel metrics/log export
// subscribers alongside whatever viewer subscribers gRPC/WS transports
// register on demand.
func registerExportSubscribers(collector *telemetry.Collector, meter metric.Meter, bridgedLogger *slog.Logger) error {
	metricsSink, err := sink.NewMetricsSink(meter)
	if err != nil {
		return err
	}
	if err := collector.RegisterSubscriber(telemetry.NewSubscriber(
		exportSubscriberID+"-metrics", metricsSink, *telemetry.AllInterests(), true,
	)); err != nil {
		return err
	}

	logSink := sink.NewLogSink(bridgedLogger)
	if err := collector.RegisterSubscriber(telemetry.NewSubscriber(
		exportSubscriberID+"-logs", logSink, *telemetry.AllInterests(), true,
	)); err != nil {
		return err
	}

	return nil
}
