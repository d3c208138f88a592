package scheduler

import (
	"time"

	"github.com/smallbiznis/seatly/internal/config"
)

// Config controls the run interval and batch sizes.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	// ResyncIdle is how long a subscription must sit untouched after its
	// period end before it is fetched from the processor again.
	ResyncIdle time.Duration
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Minute,
		BatchSize:   50,
		ResyncIdle:  15 * time.Minute,
		JobTimeout:  time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Scheduler.Enabled,
		RunInterval: cfg.Scheduler.Interval,
		BatchSize:   cfg.Scheduler.BatchSize,
		ResyncIdle:  cfg.Scheduler.ResyncIdle,
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
	if c.ResyncIdle <= 0 {
		c.ResyncIdle = defaults.ResyncIdle
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
