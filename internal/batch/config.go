package batch

import (
	"fmt"
	"time"

	"github.com/coswat-global/coswat-orch/internal/domain"
)

// BatchConfig represents a scheduled batch configuration
type BatchConfig struct {
	Name             string   `toml:"name"`
	Cron             string   `toml:"cron"`
	Regions          []string `toml:"regions"` // empty means every region of the version
	Version          string   `toml:"version"`
	Period           string   `toml:"period"`
	Concurrency      int      `toml:"concurrency"`
	MaxDuration      string   `toml:"max_duration"`
	NotifyOnComplete bool     `toml:"notify_on_complete"`
}

// Validate checks if the config is valid
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Period != "" {
		if _, err := domain.ParseRunPeriod(c.Period); err != nil {
			return err
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if c.MaxDuration == "" {
		c.MaxDuration = "12h" // Default
	}
	if _, err := time.ParseDuration(c.MaxDuration); err != nil {
		return fmt.Errorf("invalid max_duration: %w", err)
	}
	return nil
}

// Deadline returns the parsed max_duration, zero when unset or invalid
func (c BatchConfig) Deadline() time.Duration {
	d, err := time.ParseDuration(c.MaxDuration)
	if err != nil {
		return 0
	}
	return d
}
