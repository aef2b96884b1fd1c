package scheduler

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// StaleRecoveryInterval is how often processing jobs with a vanished
	// worker are requeued
	StaleRecoveryInterval time.Duration `env:"STALE_RECOVERY_INTERVAL" envDefault:"1m"`

	// RetrySweepInterval is how often failed jobs with a retryable error
	// class are requeued
	RetrySweepInterval time.Duration `env:"RETRY_SWEEP_INTERVAL" envDefault:"30s"`

	// RetrySweepBatch caps how many failures one sweep requeues
	RetrySweepBatch int `env:"RETRY_SWEEP_BATCH" envDefault:"50"`

	// OrphanSweepInterval is how often vectors whose chunk no longer exists
	// are removed
	OrphanSweepInterval time.Duration `env:"ORPHAN_SWEEP_INTERVAL" envDefault:"1h"`
}

// NewConfig creates a new Config from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scheduler config: %w", err)
	}
	return cfg, nil
}
