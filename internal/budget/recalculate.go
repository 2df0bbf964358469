package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fincore/internal/core"
	"fincore/internal/period"
	"fincore/internal/store"
)

// Store is the slice of the storage adapter the recalculator needs.
type Store interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	ListUsers(ctx context.Context, opts *store.ListOptions) ([]core.User, error)
	ListBudgets(ctx context.Context, userID string, f *store.BudgetFilter, opts *store.ListOptions) ([]core.Budget, error)
	ListTransactions(ctx context.Context, userID string, f *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error)
	UpdateBudgetSpent(ctx context.Context, id string, spent decimal.Decimal) error
}

// Recalculator recomputes the cached spend of active budgets and writes it
// back through the adapter.
type Recalculator struct {
	store             Store
	concurrency       int
	defaultMonthStart int
	logger            *slog.Logger
}

// NewRecalculator creates a recalculator. concurrency bounds how many
// budgets are persisted at once.
func NewRecalculator(s Store, concurrency, defaultMonthStart int, logger *slog.Logger) *Recalculator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recalculator{
		store:             s,
		concurrency:       concurrency,
		defaultMonthStart: core.ClampMonthStart(defaultMonthStart),
		logger:            logger,
	}
}

// RecalculateUser computes every active budget of userID at now and
// persists the spent amounts. It is not atomic: budgets written before a
// failure keep their new value.
func (r *Recalculator) RecalculateUser(ctx context.Context, userID string, now time.Time) ([]Progress, error) {
	startDay := r.defaultMonthStart
	u, err := r.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		if u.Settings.FinancialMonthStart > 0 {
			startDay = core.ClampMonthStart(u.Settings.FinancialMonthStart)
		}
	case errors.Is(err, core.ErrNotFound):
		// Guests may have no user record yet.
	default:
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	active := true
	budgets, err := r.store.ListBudgets(ctx, userID, &store.BudgetFilter{IsActive: &active}, nil)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	if len(budgets) == 0 {
		return nil, nil
	}

	txs, err := r.store.ListTransactions(ctx, userID, &store.TransactionFilter{Type: core.TxExpense}, nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	results := make([]Progress, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, b := range budgets {
		g.Go(func() error {
			rng := period.ForBudget(b, now, startDay)
			p := Calculate(b, txs, rng, now)
			if err := r.store.UpdateBudgetSpent(gctx, b.ID, p.Spent); err != nil {
				return fmt.Errorf("update budget %s spent: %w", b.ID, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Budgets recalculated",
		"user_id", userID,
		"budgets", len(budgets),
		"over_budget", countOver(results))
	return results, nil
}

// RecalculateAll runs RecalculateUser for every known user. The first
// adapter error stops the sweep.
func (r *Recalculator) RecalculateAll(ctx context.Context, now time.Time) (int, error) {
	users, err := r.store.ListUsers(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	total := 0
	for _, u := range users {
		res, err := r.RecalculateUser(ctx, u.ID, now)
		if err != nil {
			return total, err
		}
		total += len(res)
	}
	return total, nil
}

func countOver(ps []Progress) int {
	n := 0
	for _, p := range ps {
		if p.IsOverBudget {
			n++
		}
	}
	return n
}
