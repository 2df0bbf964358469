package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fincore/internal/budget"
	"fincore/internal/cache"
	"fincore/internal/cli"
	"fincore/internal/log"
	"fincore/internal/services"
	"fincore/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(nil, os.Stdout).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, os.Stdout)
	logger.Info("Starting fincore-worker", "backend", cfg.DataBackend, "recalc_interval", cfg.RecalcInterval)

	res, err := cli.InitBackend(context.Background(), logger.WithComponent(log.ComponentBackend).Slog(), cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}

	statsCache := cache.NewLRUCache[services.Dashboard](cfg.StatsCacheSize, cfg.StatsCacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cfg.StatsCacheTTL)

	workerLog := logger.WithComponent(log.ComponentWorker).Slog()
	recalc := budget.NewRecalculator(res.Store, cfg.RecalcConcurrency, cfg.DefaultMonthStart, workerLog)
	stats := services.NewStatsService(res.Store, statsCache, cfg.DefaultMonthStart, workerLog)
	budgetWorker := worker.NewBudgetWorker(recalc, stats, workerLog)

	ctx, done := cli.GracefulShutdown(logger.Slog(), 30*time.Second, func() {
		cacheManager.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to release backend", "error", err)
		}
	})

	if res.Events != nil {
		go func() {
			if err := res.Events.ConsumeLedgerEvents(ctx, budgetWorker.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
				cli.LogFailure(ctx, logger.WithComponent(log.ComponentAMQP), log.OpConsume, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled - budgets refresh on the periodic sweep only")
	}

	go budgetWorker.Run(ctx, cfg.RecalcInterval)

	cli.WaitForShutdown(ctx, done)
}
