package observability

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/toddfishman/meetini/internal/config"
)

// Config is the observability slice of the environment. Unset values fall
// back to the application config.
type Config struct {
	ServiceName string `env:"OTEL_SERVICE_NAME"`
	Environment string `env:"DEPLOYMENT_ENV"`
	Version     string `env:"SERVICE_VERSION"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// OtelEnabled is nil when OTEL_ENABLED is unset; see Exporting.
	OtelEnabled          *bool   `env:"OTEL_ENABLED"`
	OtelExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelExporterProtocol string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	OtelTracesProtocol   string  `env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	OtelSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

func LoadConfig(app config.Config) Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("[observability] %v, using defaults", err)
		cfg = Config{LogLevel: "info", LogFormat: "json", OtelExporterProtocol: "grpc", OtelSamplingRatio: 0.1}
	}

	cfg.ServiceName = firstNonEmpty(cfg.ServiceName, app.AppName, "meetini")
	cfg.Environment = firstNonEmpty(cfg.Environment, app.Environment)
	cfg.Version = firstNonEmpty(cfg.Version, app.AppVersion)
	cfg.OtelExporterEndpoint = firstNonEmpty(cfg.OtelExporterEndpoint, app.OTLPEndpoint)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.OtelExporterProtocol = strings.ToLower(firstNonEmpty(cfg.OtelTracesProtocol, cfg.OtelExporterProtocol))
	if cfg.OtelEnabled == nil {
		enabled := !isDevEnv(cfg.Environment)
		cfg.OtelEnabled = &enabled
	}
	return cfg
}

// Exporting reports whether OTLP export is on. Development environments
// default to off.
func (c Config) Exporting() bool {
	if c.OtelEnabled == nil {
		return !isDevEnv(c.Environment)
	}
	return *c.OtelEnabled
}

func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
