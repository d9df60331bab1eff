package observability

import (
	"github.com/toddfishman/meetini/internal/observability/logger"
	"github.com/toddfishman/meetini/internal/observability/metrics"
	"github.com/toddfishman/meetini/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and both metric pipelines: OTLP for request
// and delivery counters, Prometheus for reminder job health.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig),

	fx.Provide(func(cfg Config) logger.Config {
		return logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			Debug:               cfg.Debug(),
			IncludeCaller:       true,
			IncludeStackOnError: cfg.Debug(),
		}
	}, logger.New),

	fx.Provide(func(cfg Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.Exporting(),
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		}
	}, tracing.NewProvider),

	fx.Provide(func(cfg Config) metrics.Config {
		return metrics.Config{
			Enabled:          cfg.Exporting(),
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		}
	}, metrics.NewProvider, metrics.New, metrics.NewHTTPMetrics),

	// Job collectors live on the default registry served at /metrics.
	fx.Provide(func(cfg metrics.Config) *metrics.SchedulerMetrics {
		return metrics.SchedulerWithConfig(cfg)
	}),

	fx.Invoke(func(*sdktrace.TracerProvider, *metrics.SchedulerMetrics) {}),
)
