package scheduler

import (
	"time"

	"github.com/smallbiznis/affiliora/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	OrderPaymentTTL time.Duration
	// EnabledJobs limits the run to the named jobs; empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RunInterval:     time.Minute,
		BatchSize:       50,
		OrderPaymentTTL: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:         cfg.Scheduler.Enabled,
		RunInterval:     cfg.Scheduler.RunInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		OrderPaymentTTL: cfg.Scheduler.OrderPaymentTTL,
		EnabledJobs:     cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.OrderPaymentTTL <= 0 {
		c.OrderPaymentTTL = defaults.OrderPaymentTTL
	}
	return c
}
