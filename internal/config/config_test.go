package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "test_key_123")
	got := expandEnvVars("api_key: ${TEST_API_KEY}")
	require.Equal(t, "api_key: test_key_123", got)
}

func TestExpandEnvVarsMissingVarBecomesEmpty(t *testing.T) {
	got := expandEnvVars("api_key: ${DEFINITELY_NOT_SET_VAR}")
	require.Equal(t, "api_key: ", got)
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "exchange.api_key")
}

func TestValidateRejectsBadDirection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.Direction = "SIDEWAYS"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid.direction")
}

func TestValidateRejectsNonPositiveGridAmount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid.GridAmount = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid.grid_amount")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.System.LogLevel = "VERBOSE"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "system.log_level")
}

func TestConfigStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	rendered := cfg.String()
	require.NotContains(t, rendered, "test_api_key")
	require.NotContains(t, rendered, "test_secret_key")
	require.Contains(t, rendered, "REDACTED")
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GRID_API_KEY", "expanded-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "grid.yaml")
	yamlBody := `
app:
  instance_name: gridbot-test
exchange:
  api_key: ${TEST_GRID_API_KEY}
  secret_key: sekrit
grid:
  market_id: BTC-PERP
  direction: LONG
  grid_count: 3
  grid_amount: 0.01
  grid_spread: 0.0005
  max_total_orders: 20
  max_position: 1
system:
  log_level: INFO
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "expanded-key", string(cfg.Exchange.APIKey))
}

func TestLoadConfigRejectsInvalidDirection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid.yaml")
	yamlBody := `
app:
  instance_name: gridbot-test
exchange:
  api_key: k
  secret_key: s
grid:
  market_id: BTC-PERP
  direction: UP
  grid_count: 3
  grid_amount: 0.01
  grid_spread: 0.0005
  max_total_orders: 20
  max_position: 1
system:
  log_level: INFO
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
