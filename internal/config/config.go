// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure for one grid bot instance.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Grid        GridConfig        `yaml:"grid"`
	System      SystemConfig      `yaml:"system"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Timing      TimingConfig      `yaml:"timing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	InstanceName string `yaml:"instance_name" validate:"required"`
	DryRun       bool   `yaml:"dry_run"`
}

// ExchangeConfig contains the single exchange connection this instance trades against.
type ExchangeConfig struct {
	APIKey    Secret `yaml:"api_key" validate:"required"`
	SecretKey Secret `yaml:"secret_key" validate:"required"`
	BaseURL   string `yaml:"base_url"`
	ProxyURL  string `yaml:"proxy_url"`
}

// GridConfig contains the grid strategy's own parameters, keyed to match
// the recognized config-key table: DIRECTION, GRID_COUNT, GRID_AMOUNT,
// GRID_SPREAD, MAX_TOTAL_ORDERS, MAX_POSITION, ALER_POSITION,
// DECREASE_POSITION, ATR_THRESHOLD, MARKET_ID.
type GridConfig struct {
	MarketID  string `yaml:"market_id" validate:"required"`
	Direction string `yaml:"direction" validate:"required,oneof=LONG SHORT"`

	GridCount  int     `yaml:"grid_count" validate:"required,min=1,max=200"`
	GridAmount float64 `yaml:"grid_amount" validate:"required,min=0.00001"`
	GridSpread float64 `yaml:"grid_spread" validate:"required,min=0"`

	MaxTotalOrders int     `yaml:"max_total_orders" validate:"required,min=1,max=500"`
	MaxPosition    float64 `yaml:"max_position" validate:"required,min=0"`
	AlertPosition  float64 `yaml:"alert_position" validate:"min=0"`
	// DecreasePosition is the inventory threshold past which reduce mode is
	// eligible to engage; zero disables it.
	DecreasePosition float64 `yaml:"decrease_position" validate:"min=0"`

	ATRThreshold float64 `yaml:"atr_threshold" validate:"min=0"`

	PriceDecimals int `yaml:"price_decimals" validate:"min=0,max=18"`
	SizeDecimals  int `yaml:"size_decimals" validate:"min=0,max=18"`
}

// NotifierConfig contains the alert channel fan-out configuration. Every
// field is optional; a channel is only added when its required values are
// non-empty.
type NotifierConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	Keyword        string `yaml:"keyword"`
	SlackWebhook   string `yaml:"slack_webhook"`
	TelegramToken  Secret `yaml:"telegram_bot_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// SystemConfig contains system settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
	LedgerPath   string `yaml:"ledger_path"`
}

// TimingConfig contains timing-related settings.
type TimingConfig struct {
	TickIntervalSeconds       int `yaml:"tick_interval_seconds" validate:"min=1,max=300"`
	StalenessThresholdSeconds int `yaml:"staleness_threshold_seconds" validate:"min=1,max=300"`
	RiskCheckEveryNTicks      int `yaml:"risk_check_every_n_ticks" validate:"min=1,max=100"`
	GatewayTimeoutSeconds     int `yaml:"gateway_timeout_seconds" validate:"min=1,max=120"`
	CancelJoinDeadlineSeconds int `yaml:"cancel_join_deadline_seconds" validate:"min=1,max=60"`
}

// ConcurrencyConfig contains worker pool settings.
type ConcurrencyConfig struct {
	ExecPoolSize   int `yaml:"exec_pool_size" validate:"min=1,max=100"`
	ExecPoolBuffer int `yaml:"exec_pool_buffer" validate:"min=1,max=10000"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExchangeConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateGridConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.InstanceName == "" {
		return ValidationError{Field: "app.instance_name", Message: "instance name is required"}
	}
	return nil
}

func (c *Config) validateExchangeConfig() error {
	if string(c.Exchange.APIKey) == "" {
		return ValidationError{Field: "exchange.api_key", Message: "API key is required"}
	}
	if string(c.Exchange.SecretKey) == "" {
		return ValidationError{Field: "exchange.secret_key", Message: "secret key is required"}
	}
	return nil
}

func (c *Config) validateGridConfig() error {
	if c.Grid.MarketID == "" {
		return ValidationError{Field: "grid.market_id", Message: "market id is required"}
	}
	if c.Grid.Direction != "LONG" && c.Grid.Direction != "SHORT" {
		return ValidationError{Field: "grid.direction", Value: c.Grid.Direction, Message: "must be LONG or SHORT"}
	}
	if c.Grid.GridCount <= 0 {
		return ValidationError{Field: "grid.grid_count", Value: c.Grid.GridCount, Message: "must be positive"}
	}
	if c.Grid.GridAmount <= 0 {
		return ValidationError{Field: "grid.grid_amount", Value: c.Grid.GridAmount, Message: "must be positive"}
	}
	if c.Grid.GridSpread < 0 {
		return ValidationError{Field: "grid.grid_spread", Value: c.Grid.GridSpread, Message: "must not be negative"}
	}
	if c.Grid.MaxTotalOrders <= 0 {
		return ValidationError{Field: "grid.max_total_orders", Value: c.Grid.MaxTotalOrders, Message: "must be positive"}
	}
	if c.Grid.MaxPosition <= 0 {
		return ValidationError{Field: "grid.max_position", Value: c.Grid.MaxPosition, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a YAML rendering of the configuration; Secret fields are
// masked by Secret.MarshalYAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests and the mock
// standalone run mode.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{InstanceName: "gridbot-dev", DryRun: true},
		Exchange: ExchangeConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
		},
		Grid: GridConfig{
			MarketID:         "BTC-PERP",
			Direction:        "LONG",
			GridCount:        3,
			GridAmount:       0.01,
			GridSpread:       0.0005,
			MaxTotalOrders:   20,
			MaxPosition:      1.0,
			AlertPosition:    0.8,
			DecreasePosition: 0,
			ATRThreshold:     15.0,
			PriceDecimals:    2,
			SizeDecimals:     4,
		},
		System: SystemConfig{LogLevel: "INFO", CancelOnExit: true},
		Timing: TimingConfig{
			TickIntervalSeconds:       10,
			StalenessThresholdSeconds: 5,
			RiskCheckEveryNTicks:      6,
			GatewayTimeoutSeconds:     8,
			CancelJoinDeadlineSeconds: 5,
		},
		Concurrency: ConcurrencyConfig{ExecPoolSize: 4, ExecPoolBuffer: 64},
	}
}
