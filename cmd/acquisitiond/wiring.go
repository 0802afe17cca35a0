package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nself/content-acquisition/internal/clock"
	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/orchestrator"
	"github.com/nself/content-acquisition/internal/resilience"
	"github.com/nself/content-acquisition/internal/retry"
	"github.com/nself/content-acquisition/internal/rss"
	"github.com/nself/content-acquisition/internal/siblings"
	"github.com/nself/content-acquisition/internal/store"
	"github.com/nself/content-acquisition/internal/xlog"
)

// App owns every long-lived subsystem and their lifecycle, the way the
// teacher daemon's App owns its watchers/reload wiring/schedulers.
type App struct {
	logger      zerolog.Logger
	store       store.Store
	orch        *orchestrator.Orchestrator
	retryPlan   *retry.Planner
	scheduler   *rss.Scheduler
	metricsAddr string
}

// buildApp wires every component from resolved configuration. Callers own
// closing the returned App's store.
func buildApp(cfg *config.Resolved, metricsAddr string) (*App, error) {
	log := xlog.WithComponent("wiring")

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("wiring: open store: %w", err)
	}

	var trip *resilience.SharedTrip
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		})
		trip = resilience.NewSharedTrip(rdb, log)
	}

	clients := siblings.New(cfg, trip)
	clk := clock.Real{}

	orch := orchestrator.New(st, clients, clk, cfg)
	planner := retry.New(st, orch)
	scheduler := rss.New(st, orch, clk, cfg)

	return &App{
		logger:      log,
		store:       st,
		orch:        orch,
		retryPlan:   planner,
		scheduler:   scheduler,
		metricsAddr: metricsAddr,
	}, nil
}

func openStore(cfg *config.Resolved) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.OpenSQLite(cfg.Store.Path)
	}
}

// Run starts every background subsystem and blocks until ctx is cancelled
// or a subsystem fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.metricsAddr != "" {
		srv := &http.Server{Addr: a.metricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			a.logger.Info().Str("addr", a.metricsAddr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})

	g.Go(func() error {
		return a.recoverNonTerminalRuns(ctx)
	})

	return g.Wait()
}

// recoverNonTerminalRuns hands every non-terminal PipelineRun to the retry
// planner once at startup (§5 crash recovery).
func (a *App) recoverNonTerminalRuns(ctx context.Context) error {
	runs, err := a.store.ListNonTerminalPipelineRuns(ctx)
	if err != nil {
		return fmt.Errorf("wiring: list non-terminal runs: %w", err)
	}
	for _, run := range runs {
		run := run
		a.logger.Info().Int64("run_id", run.ID).Msg("resuming pipeline run after restart")
		go func() {
			if err := a.retryPlan.Retry(context.Background(), run.ID); err != nil {
				a.logger.Error().Err(err).Int64("run_id", run.ID).Msg("resume failed")
			}
		}()
	}
	return nil
}
