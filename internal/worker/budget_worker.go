// Package worker keeps derived ledger data fresh: budget spend and cached
// statistics.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fincore/internal/amqp"
	"fincore/internal/budget"
	"fincore/internal/ledger"
)

// Recalculator recomputes budget spend.
type Recalculator interface {
	RecalculateUser(ctx context.Context, userID string, now time.Time) ([]budget.Progress, error)
	RecalculateAll(ctx context.Context, now time.Time) (int, error)
}

// Invalidator drops cached views of a user.
type Invalidator interface {
	Invalidate(userID string) int
}

// BudgetWorker refreshes a user's budgets and cached statistics after each
// ledger event, and sweeps every user periodically to catch lost events.
type BudgetWorker struct {
	recalc Recalculator
	stats  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

var _ ledger.Publisher = (*BudgetWorker)(nil)

// NewBudgetWorker creates a worker. stats may be nil.
func NewBudgetWorker(recalc Recalculator, stats Invalidator, logger *slog.Logger) *BudgetWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetWorker{recalc: recalc, stats: stats, logger: logger, now: time.Now}
}

// HandleLedgerEvent processes one event consumed from AMQP.
func (w *BudgetWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	return w.PublishLedgerEvent(ctx, msg.Event())
}

// PublishLedgerEvent handles ev in-process, which lets the worker stand in
// for a broker when none is configured.
func (w *BudgetWorker) PublishLedgerEvent(ctx context.Context, ev ledger.Event) error {
	if ev.UserID == "" {
		w.logger.WarnContext(ctx, "Ignoring ledger event without user", "kind", string(ev.Kind))
		return nil
	}

	if w.stats != nil {
		if n := w.stats.Invalidate(ev.UserID); n > 0 {
			w.logger.DebugContext(ctx, "Cached stats invalidated", "user_id", ev.UserID, "count", n)
		}
	}

	res, err := w.recalc.RecalculateUser(ctx, ev.UserID, w.now())
	if err != nil {
		return fmt.Errorf("recalculate budgets of %s: %w", ev.UserID, err)
	}
	w.logger.InfoContext(ctx, "Processed ledger event",
		"kind", string(ev.Kind),
		"user_id", ev.UserID,
		"transaction_id", ev.TransactionID,
		"budgets", len(res))
	return nil
}

// Sweep recalculates every user's budgets once.
func (w *BudgetWorker) Sweep(ctx context.Context) (int, error) {
	n, err := w.recalc.RecalculateAll(ctx, w.now())
	if err != nil {
		return n, fmt.Errorf("periodic recalculation: %w", err)
	}
	return n, nil
}

// Run sweeps immediately and then every interval until ctx ends.
func (w *BudgetWorker) Run(ctx context.Context, interval time.Duration) {
	w.logger.InfoContext(ctx, "Running initial budget recalculation...")
	w.sweepAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepAndLog(ctx)
		}
	}
}

func (w *BudgetWorker) sweepAndLog(ctx context.Context) {
	n, err := w.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Budget recalculation failed", "error", err, "budgets", n)
		}
		return
	}
	w.logger.InfoContext(ctx, "Budget recalculation complete", "budgets", n)
}
