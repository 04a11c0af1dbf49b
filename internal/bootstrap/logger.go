package bootstrap

import (
	"market_maker/internal/core"
	"market_maker/pkg/logging"
)

// InitLogger builds the structured logger for the grid bot instance and
// installs it as the package-level global logger.
func InitLogger(cfg *Config) core.ILogger {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fallback, _ := logging.NewZapLogger("INFO")
		logging.SetGlobalLogger(fallback)
		return fallback
	}

	named := logger.WithField("instance", cfg.App.InstanceName)
	logging.SetGlobalLogger(named)
	return named
}
