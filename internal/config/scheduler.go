package config

import (
	"fmt"
	"time"
)

type SchedulerConfig struct {
	Enabled               bool          `yaml:"enabled"`
	PendingBonusAt        string        `yaml:"pending_bonus_at"`
	MonthlyROIAt          string        `yaml:"monthly_roi_at"`
	MatchingPruneAt       string        `yaml:"matching_prune_at"`
	SettlementConcurrency int           `yaml:"settlement_concurrency"`
	LockTTL               time.Duration `yaml:"lock_ttl"`
}

func loadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:               getEnvAsBool("SCHEDULER_ENABLED", true),
		PendingBonusAt:        getEnv("SCHEDULE_PENDING_BONUS_AT", "00:05"),
		MonthlyROIAt:          getEnv("SCHEDULE_MONTHLY_ROI_AT", "00:15"),
		MatchingPruneAt:       getEnv("SCHEDULE_MATCHING_PRUNE_AT", "00:01"),
		SettlementConcurrency: getEnvAsInt("SETTLEMENT_CONCURRENCY", 8),
		LockTTL:               getEnvAsDuration("SETTLEMENT_LOCK_TTL", 30*time.Minute),
	}
}

func (c *SchedulerConfig) Validate() error {
	for name, at := range map[string]string{
		"pending bonus":  c.PendingBonusAt,
		"monthly roi":    c.MonthlyROIAt,
		"matching prune": c.MatchingPruneAt,
	} {
		if _, _, err := ParseTimeOfDay(at); err != nil {
			return fmt.Errorf("%s schedule: %w", name, err)
		}
	}
	if c.SettlementConcurrency <= 0 {
		return fmt.Errorf("settlement concurrency must be positive")
	}
	return nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}
