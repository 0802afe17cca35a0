package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/xlog"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "/etc/acquisitiond/config.yaml", "path to config file (YAML)")
	metricsAddr := flag.String("metrics-addr", ":9464", "address the /metrics endpoint listens on (empty disables it)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("acquisitiond %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info", Service: "acquisitiond", Version: version})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}

	app, err := buildApp(cfg, *metricsAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire application")
	}
	defer func() {
		if err := app.store.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	if err := config.Watch(ctx, *configPath, func(reloaded *config.Resolved) {
		app.scheduler.Reconfigure(reloaded)
	}); err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	}

	logger.Info().Str("config_path", *configPath).Msg("acquisitiond starting")

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("acquisitiond exited with error")
	}

	logger.Info().Msg("acquisitiond stopped")
}
