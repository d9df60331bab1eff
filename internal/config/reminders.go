package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultResponseNeededDelay = 24 * time.Hour
	DefaultUpcomingLeadTime    = time.Hour
	DefaultRetention           = 30 * 24 * time.Hour
	DefaultGatewayTimeout      = 30 * time.Second
	DefaultMaxConcurrency      = 8
	DefaultBatchSize           = 100
	DefaultLinkTTL             = 7 * 24 * time.Hour
	DefaultRunLockTTL          = 10 * time.Minute
	DefaultDispatchTimeout     = 5 * time.Minute
	DefaultCleanupTimeout      = time.Minute
)

// ReminderConfig is parsed from REMINDER_* environment variables.
type ReminderConfig struct {
	CronSecret string `env:"REMINDER_CRON_SECRET"`
	// CronSpec enables the in-process trigger when set, e.g. "*/5 * * * *".
	CronSpec string `env:"REMINDER_CRON_SPEC"`

	ResponseNeededDelay time.Duration `env:"REMINDER_RESPONSE_NEEDED_DELAY" envDefault:"24h"`
	UpcomingLeadTime    time.Duration `env:"REMINDER_UPCOMING_LEAD_TIME" envDefault:"1h"`
	Retention           time.Duration `env:"REMINDER_RETENTION" envDefault:"720h"`

	GatewayTimeout time.Duration `env:"REMINDER_GATEWAY_TIMEOUT" envDefault:"30s"`
	MaxConcurrency int           `env:"REMINDER_MAX_CONCURRENCY" envDefault:"8"`
	BatchSize      int           `env:"REMINDER_BATCH_SIZE" envDefault:"100"`

	// EnabledJobs restricts a run to the named jobs; empty runs all.
	EnabledJobs     []string      `env:"REMINDER_ENABLED_JOBS" envSeparator:","`
	DispatchTimeout time.Duration `env:"REMINDER_DISPATCH_TIMEOUT" envDefault:"5m"`
	CleanupTimeout  time.Duration `env:"REMINDER_CLEANUP_TIMEOUT" envDefault:"1m"`

	// RunLockTTL bounds how long one run holds the redis overlap lock.
	RunLockTTL time.Duration `env:"REMINDER_RUN_LOCK_TTL" envDefault:"10m"`

	LinkSecret string        `env:"REMINDER_LINK_SECRET"`
	LinkTTL    time.Duration `env:"REMINDER_LINK_TTL" envDefault:"168h"`

	// PolicyPath overrides the directory searched for reminders.yml.
	PolicyPath string `env:"REMINDER_POLICY_PATH"`
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	if c.ResponseNeededDelay <= 0 {
		c.ResponseNeededDelay = DefaultResponseNeededDelay
	}
	if c.UpcomingLeadTime <= 0 {
		c.UpcomingLeadTime = DefaultUpcomingLeadTime
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = DefaultGatewayTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = DefaultDispatchTimeout
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = DefaultCleanupTimeout
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = DefaultRunLockTTL
	}
	if c.LinkTTL <= 0 {
		c.LinkTTL = DefaultLinkTTL
	}
	c.CronSecret = strings.TrimSpace(c.CronSecret)
	c.CronSpec = strings.TrimSpace(c.CronSpec)
	return c
}

// Policy returns the timing policy seeded from the environment.
func (c ReminderConfig) Policy() ReminderPolicy {
	return ReminderPolicy{
		ResponseNeededDelay: c.ResponseNeededDelay,
		UpcomingLeadTime:    c.UpcomingLeadTime,
		Retention:           c.Retention,
	}
}

// NotificationConfig is parsed from EMAIL_*, SMTP_* and SMS_* variables.
type NotificationConfig struct {
	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"smtp"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPFrom      string `env:"SMTP_FROM" envDefault:"Meetini <no-reply@meetini.app>"`

	SMSProvider string `env:"SMS_PROVIDER" envDefault:"noop"`
	SMSEndpoint string `env:"SMS_ENDPOINT"`
	SMSUsername string `env:"SMS_USERNAME"`
	SMSPassword string `env:"SMS_PASSWORD"`
	SMSFrom     string `env:"SMS_FROM"`
}

func (c NotificationConfig) withDefaults() NotificationConfig {
	c.EmailProvider = strings.ToLower(strings.TrimSpace(c.EmailProvider))
	if c.EmailProvider == "" {
		c.EmailProvider = "smtp"
	}
	if c.EmailProvider == "smtp" && strings.TrimSpace(c.SMTPHost) == "" {
		c.EmailProvider = "noop"
	}
	if c.SMTPPort <= 0 {
		c.SMTPPort = 587
	}
	c.SMSProvider = strings.ToLower(strings.TrimSpace(c.SMSProvider))
	if c.SMSProvider == "" || (c.SMSProvider == "http" && strings.TrimSpace(c.SMSEndpoint) == "") {
		c.SMSProvider = "noop"
	}
	return c
}

// ReminderPolicy holds the timing rules that may be changed without a restart.
type ReminderPolicy struct {
	ResponseNeededDelay time.Duration
	UpcomingLeadTime    time.Duration
	Retention           time.Duration
}

type ReminderPolicyHolder struct {
	current atomic.Value // holds ReminderPolicy
}

// NewStaticReminderPolicyHolder returns a holder that never reloads.
func NewStaticReminderPolicyHolder(policy ReminderPolicy) *ReminderPolicyHolder {
	holder := &ReminderPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewReminderPolicyHolder reads reminders.yml when present and watches it for
// changes. Missing files fall back to the environment policy.
func NewReminderPolicyHolder(cfg Config) (*ReminderPolicyHolder, error) {
	defaults := cfg.Reminders.Policy()

	v := viper.New()
	v.SetConfigName("reminders")
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.Reminders.PolicyPath); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/meetini")
	v.AddConfigPath(".")

	v.SetDefault("reminders.responseNeededDelay", defaults.ResponseNeededDelay)
	v.SetDefault("reminders.upcomingLeadTime", defaults.UpcomingLeadTime)
	v.SetDefault("reminders.retention", defaults.Retention)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	policy := readReminderPolicy(v)
	if err := validateReminderPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticReminderPolicyHolder(policy)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readReminderPolicy(v)
		if err := validateReminderPolicy(updated); err != nil {
			log.Printf("[reminder-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reminder-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReminderPolicyHolder) Get() ReminderPolicy {
	return h.current.Load().(ReminderPolicy)
}

// readReminderPolicy reads key by key so a partial file keeps the defaults
// for the keys it leaves out.
func readReminderPolicy(v *viper.Viper) ReminderPolicy {
	return ReminderPolicy{
		ResponseNeededDelay: v.GetDuration("reminders.responseNeededDelay"),
		UpcomingLeadTime:    v.GetDuration("reminders.upcomingLeadTime"),
		Retention:           v.GetDuration("reminders.retention"),
	}
}

func validateReminderPolicy(p ReminderPolicy) error {
	if p.ResponseNeededDelay <= 0 {
		return errors.New("reminders.responseNeededDelay must be positive")
	}
	if p.UpcomingLeadTime <= 0 {
		return errors.New("reminders.upcomingLeadTime must be positive")
	}
	if p.Retention <= 0 {
		return errors.New("reminders.retention must be positive")
	}
	return nil
}
