package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval       time.Duration
	SweepBatchSize    int
	DispatchBatchSize int
	JobTimeout        time.Duration
	LockTTL           time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		SweepBatchSize:    200,
		DispatchBatchSize: 50,
		JobTimeout:        30 * time.Second,
		LockTTL:           2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	if c.DispatchBatchSize <= 0 {
		c.DispatchBatchSize = defaults.DispatchBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
