package scheduler

import (
	"strings"
	"time"

	"github.com/toddfishman/meetini/internal/config"
)

const (
	JobDispatchReminders = "dispatch_reminders"
	JobCleanupReminders  = "cleanup_reminders"

	runLockKey = "meetini:reminders:run"

	actorSystem = "system"
)

// Config controls job timeouts and the optional in-process trigger.
type Config struct {
	DispatchTimeout time.Duration
	CleanupTimeout  time.Duration
	BatchSize       int
	LockTTL         time.Duration
	// CronSpec enables the in-process trigger when non-empty.
	CronSpec    string
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		DispatchTimeout: config.DefaultDispatchTimeout,
		CleanupTimeout:  config.DefaultCleanupTimeout,
		BatchSize:       config.DefaultBatchSize,
		LockTTL:         config.DefaultRunLockTTL,
	}
}

func ProvideConfig(cfg config.Config) Config {
	r := cfg.Reminders
	return Config{
		DispatchTimeout: r.DispatchTimeout,
		CleanupTimeout:  r.CleanupTimeout,
		BatchSize:       r.BatchSize,
		LockTTL:         r.RunLockTTL,
		CronSpec:        r.CronSpec,
		EnabledJobs:     r.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = defaults.DispatchTimeout
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = defaults.CleanupTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	c.CronSpec = strings.TrimSpace(c.CronSpec)
	return c
}
