package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string `env:"APP_SERVICE" envDefault:"meetini"`
	AppVersion  string `env:"APP_VERSION" envDefault:"0.1.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	// NodeID seeds the snowflake generator; replicas need distinct values.
	NodeID int64 `env:"SNOWFLAKE_NODE_ID" envDefault:"1"`

	// PublicBaseURL is the origin used to build links in notifications.
	PublicBaseURL string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	APIKeys       []string `env:"API_KEYS" envSeparator:","`

	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`

	DBType            string `env:"DATABASE_TYPE" envDefault:"postgres"`
	DBHost            string `env:"DATABASE_HOST" envDefault:"localhost"`
	DBPort            string `env:"DATABASE_PORT" envDefault:"5432"`
	DBName            string `env:"DATABASE_NAME" envDefault:"meetini"`
	DBUser            string `env:"DATABASE_USER" envDefault:"postgres"`
	DBPassword        string `env:"DATABASE_PASSWORD"`
	DBSSLMode         string `env:"DATABASE_SSLMODE" envDefault:"disable"`
	DBMaxIdleConn     int    `env:"DATABASE_MAX_IDLE_CONN" envDefault:"5"`
	DBMaxOpenConn     int    `env:"DATABASE_MAX_OPEN_CONN" envDefault:"20"`
	DBConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"300"`
	DBConnMaxIdleTime int    `env:"DATABASE_CONN_MAX_IDLE_TIME" envDefault:"60"`
	DBMetricsEnabled  bool   `env:"DATABASE_METRICS_ENABLED" envDefault:"true"`

	Redis RedisConfig

	Reminders    ReminderConfig
	Notification NotificationConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Token bucket for unauthenticated invitation link lookups.
	PublicLinkRate  float64 `env:"PUBLIC_LINK_RATE" envDefault:"1"`
	PublicLinkBurst int     `env:"PUBLIC_LINK_BURST" envDefault:"20"`
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// Load reads the environment, after a .env file when one exists. A malformed
// variable is logged and the whole config falls back to defaults.
func Load() Config {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("[config] %v, using defaults", err)
		cfg = Config{}
		_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	}
	return cfg.normalize()
}

func (c Config) normalize() Config {
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)

	keys := c.APIKeys[:0:0]
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.APIKeys = keys

	c.Reminders = c.Reminders.withDefaults()
	c.Notification = c.Notification.withDefaults()
	return c
}
