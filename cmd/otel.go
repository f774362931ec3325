package cmd

import (
	"log/slog"

	otelslog "go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ProvideMeterProvider builds the process-wide OTel MeterProvider backing
// sink.MetricsSink's Int64Counter instrument. No exporter is registered
// here - an operator wanting metrics shipped somewhere wires a reader via
// their own deployment config; the SDK still aggregates in-process either
// way.
func ProvideMeterProvider() *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider()
}

func ProvideMeter(mp *sdkmetric.MeterProvider) metric.Meter {
	return mp.Meter(ServiceName)
}

// ProvideBridgedLogger builds a second slog.Logger whose handler is the
// otelslog bridge, for sink.LogSink to emit enriched events through the
// OTel logs pipeline rather than plain stdout - kept distinct from
// ProvideLogger's process logger since the two serve different audiences
// (operator console vs. telemetry export).
func ProvideBridgedLogger() *slog.Logger {
	handler := otelslog.NewHandler(ServiceName)
	return slog.New(handler)
}
