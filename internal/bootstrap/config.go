package bootstrap

import (
	"fmt"

	"market_maker/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig delegates to the project's config loader and runs the
// pre-flight checks that don't belong in schema validation.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation: a
// live (non-dry-run) instance must have non-empty exchange credentials.
// Schema validation already rejects empty credentials for every instance,
// dry run included, so for live instances this repeats that check.
func checkPreFlight(cfg *Config) error {
	if cfg.App.DryRun {
		return nil
	}
	if string(cfg.Exchange.APIKey) == "" || string(cfg.Exchange.SecretKey) == "" {
		return fmt.Errorf("exchange credentials are required outside dry_run")
	}
	return nil
}
