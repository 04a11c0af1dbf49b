package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"market_maker/internal/bootstrap"
	"market_maker/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gridbot.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridbot version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.Setup("gridbot")
	if err != nil {
		app.Logger.Warn("telemetry setup failed, continuing without it", "error", err.Error())
	} else {
		defer func() {
			if shutdownErr := tel.Shutdown(context.Background()); shutdownErr != nil {
				app.Logger.Warn("telemetry shutdown failed", "error", shutdownErr.Error())
			}
		}()
	}

	if err := app.Run(context.Background()); err != nil {
		app.Logger.Error("gridbot exited with error", "error", err.Error())
		os.Exit(1)
	}
}
