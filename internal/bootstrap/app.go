package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market_maker/internal/alert"
	"market_maker/internal/core"
	"market_maker/internal/gateway"
	"market_maker/internal/gateway/mock"
	"market_maker/internal/grid/controlloop"
	"market_maker/internal/grid/fillhandler"
	"market_maker/internal/grid/state"
	"market_maker/internal/ledger"
	"market_maker/internal/risk/supervisor"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App wires together one grid bot instance: config, logger, gateway,
// engine state, control loop, and the alert fan-out.
type App struct {
	Cfg    *Config
	Logger core.ILogger

	Engine *state.Engine
	Loop   *controlloop.Loop
	Alerts *alert.AlertManager
}

// NewApp builds a fully-wired App from a config file path. The exchange
// gateway is always the in-memory mock: this spec's external boundary is
// an abstract capability contract, not a specific venue's wire format, so
// a real adapter is a deployment-time concern outside this module.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := InitLogger(cfg)

	gridCfg := state.GridConfig{
		MarketID:         cfg.Grid.MarketID,
		Symbol:           cfg.Grid.MarketID,
		Direction:        core.Direction(cfg.Grid.Direction),
		GridCount:        cfg.Grid.GridCount,
		GridAmount:       decimal.NewFromFloat(cfg.Grid.GridAmount),
		GridSpread:       decimal.NewFromFloat(cfg.Grid.GridSpread),
		MaxTotalOrders:   cfg.Grid.MaxTotalOrders,
		MaxPosition:      decimal.NewFromFloat(cfg.Grid.MaxPosition),
		AlertPosition:    decimal.NewFromFloat(cfg.Grid.AlertPosition),
		DecreasePosition: decimal.NewFromFloat(cfg.Grid.DecreasePosition),
		ATRThreshold:     decimal.NewFromFloat(cfg.Grid.ATRThreshold),
		PriceDecimals:    cfg.Grid.PriceDecimals,
		SizeDecimals:     cfg.Grid.SizeDecimals,
		ProxyURL:         cfg.Exchange.ProxyURL,
		NotifierWebhook:  cfg.Notifier.WebhookURL,
		NotifierKeyword:  cfg.Notifier.Keyword,
	}

	gridState := state.NewGridState(gridCfg)
	// base_step is derived from grid_spread against the opening price once
	// the session observes one; seed it at the configured spread so early
	// invariant checks have a positive value to compare against.
	gridState.BaseStep = gridCfg.GridSpread
	gridState.ActiveStep = gridState.BaseStep
	engine := state.NewEngine(gridState)

	gw := gateway.NewResilient(mock.NewGateway(decimal.Zero))

	fillHandler := fillhandler.NewHandler(logger)
	if cfg.System.LedgerPath != "" {
		pnlLedger, err := ledger.Open(cfg.System.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		fillHandler = fillHandler.WithRecorder(pnlLedger)
	}
	riskSupervisor := supervisor.NewSupervisor(logger, gridCfg.ATRThreshold)

	alertManager := alert.NewAlertManager(logger)
	if cfg.Notifier.WebhookURL != "" {
		alertManager.AddChannel(alert.NewWebhookChannel(cfg.Notifier.WebhookURL, cfg.Notifier.Keyword))
	}
	if cfg.Notifier.SlackWebhook != "" {
		alertManager.AddChannel(alert.NewSlackChannel(cfg.Notifier.SlackWebhook))
	}
	if cfg.Notifier.TelegramToken != "" && cfg.Notifier.TelegramChatID != "" {
		alertManager.AddChannel(alert.NewTelegramChannel(string(cfg.Notifier.TelegramToken), cfg.Notifier.TelegramChatID))
	}

	loop := controlloop.NewLoop(engine, gw, fillHandler, riskSupervisor, logger).WithAlerts(alertManager)

	return &App{
		Cfg:    cfg,
		Logger: logger,
		Engine: engine,
		Loop:   loop,
		Alerts: alertManager,
	}, nil
}

// Run starts the session and blocks on the control loop's tick until a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Loop.StartSession(sigCtx); err != nil {
		return fmt.Errorf("session startup: %w", err)
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return a.Loop.Run(gctx)
	})

	a.Logger.Info("grid bot started", "instance", a.Cfg.App.InstanceName, "market", a.Cfg.Grid.MarketID)

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		a.Logger.Error("application stopped with error", "error", err.Error())
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}
