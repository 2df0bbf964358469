package main

import (
	"context"
	"fmt"
	"os"

	"fincore/internal/backend"
	"fincore/internal/budget"
	"fincore/internal/cache"
	"fincore/internal/cli"
	"fincore/internal/config"
	"fincore/internal/ledger"
	"fincore/internal/log"
	"fincore/internal/services"
	"fincore/internal/worker"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	backend *backend.BackendResult

	recalc *budget.Recalculator
	stats  *services.StatsService
	ledger *ledger.Coordinator
}

func newApp(ctx context.Context) (*app, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr; stdout carries command output.
	logger := cli.SetupLogger(cfg, os.Stderr)

	res, err := cli.InitBackend(ctx, logger.WithComponent(log.ComponentBackend).Slog(), cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, backend: res}
	a.recalc = budget.NewRecalculator(res.Store, cfg.RecalcConcurrency, cfg.DefaultMonthStart,
		logger.WithComponent(log.ComponentWorker).Slog())
	a.stats = services.NewStatsService(res.Store,
		cache.NewLRUCache[services.Dashboard](cfg.StatsCacheSize, cfg.StatsCacheTTL),
		cfg.DefaultMonthStart, logger.WithComponent(log.ComponentCache).Slog())

	ledgerLog := logger.WithComponent(log.ComponentLedger).Slog()
	if res.Events != nil {
		a.ledger = res.Coordinator(ledgerLog)
	} else {
		// Without a broker derived data is refreshed in-process.
		w := worker.NewBudgetWorker(a.recalc, a.stats, logger.WithComponent(log.ComponentWorker).Slog())
		a.ledger = ledger.New(res.Store, ledger.WithLogger(ledgerLog), ledger.WithPublisher(w))
	}
	return a, nil
}

func (a *app) close() {
	if a == nil || a.backend == nil {
		return
	}
	if err := a.backend.Cleanup(); err != nil {
		a.logger.Error("Failed to release backend", "error", err)
	}
}

func (a *app) backups() *services.BackupService {
	return services.NewBackupService(a.backend.Store, a.cfg.BackupDir, a.logger.WithComponent(log.ComponentBackup).Slog())
}

func (a *app) guests() *services.GuestService {
	return services.NewGuestService(a.backend.Store, a.logger.WithComponent(log.ComponentMigration).Slog())
}

func (a *app) archiver() *services.ArchiveService {
	return services.NewArchiveService(a.backend.Store, a.ledger, a.logger.WithComponent(log.ComponentStorage).Slog())
}

func (a *app) fail(ctx context.Context, op string, err error) error {
	cli.LogFailure(ctx, a.logger, op, err)
	return fmt.Errorf("%s: %w", op, err)
}
