package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/cache"
	"fincore/internal/core"
	"fincore/internal/period"
	"fincore/internal/stats"
	"fincore/internal/store"
)

// StatsStore is what the dashboard reads.
type StatsStore interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	ListAccounts(ctx context.Context, userID string, f *store.AccountFilter, opts *store.ListOptions) ([]core.Account, error)
	ListTransactions(ctx context.Context, userID string, f *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error)
}

// Dashboard is the per-user statistics view for one financial month.
type Dashboard struct {
	UserID   string
	Period   period.Range
	Summary  stats.MonthlySummary
	Spending []stats.CategorySpending
	NetWorth stats.NetWorth
	Counts   map[core.TransactionType]int

	// AverageExpense is the mean expense amount inside the period.
	AverageExpense decimal.Decimal
}

// StatsService builds dashboards and caches them until a ledger event for
// the user invalidates them.
type StatsService struct {
	store             StatsStore
	cache             cache.Cache[Dashboard]
	defaultMonthStart int
	logger            *slog.Logger
}

func NewStatsService(s StatsStore, c cache.Cache[Dashboard], defaultMonthStart int, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		store:             s,
		cache:             c,
		defaultMonthStart: core.ClampMonthStart(defaultMonthStart),
		logger:            logger,
	}
}

// StatsKeyPrefix is the cache key prefix of every view of userID.
func StatsKeyPrefix(userID string) string {
	return "stats:" + userID + ":"
}

// Dashboard returns the statistics of the financial month containing now.
func (s *StatsService) Dashboard(ctx context.Context, userID string, now time.Time) (Dashboard, error) {
	startDay, err := s.monthStart(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	rng := period.FinancialMonth(now, startDay)
	key := StatsKeyPrefix(userID) + rng.Start.Format("2006-01-02")
	if d, ok := s.cache.Get(key); ok {
		return d, nil
	}

	accounts, err := s.store.ListAccounts(ctx, userID, nil, nil)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list accounts: %w", err)
	}
	txs, err := s.store.ListTransactions(ctx, userID, nil, nil)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list transactions: %w", err)
	}

	inPeriod := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if period.Within(tx.Date, rng) {
			inPeriod = append(inPeriod, tx)
		}
	}
	d := Dashboard{
		UserID:   userID,
		Period:   rng,
		Summary:  stats.Monthly(inPeriod, rng),
		Spending: stats.SpendingByCategory(inPeriod, rng),
		NetWorth: stats.Summarize(accounts),
		Counts:   stats.CountByType(inPeriod),

		AverageExpense: stats.AverageAmount(inPeriod, core.TxExpense),
	}
	s.cache.Set(key, d)
	s.logger.DebugContext(ctx, "Dashboard computed",
		"user_id", userID,
		"period_start", rng.Start.Format("2006-01-02"),
		"transactions", len(inPeriod))
	return d, nil
}

// Invalidate drops every cached view of userID.
func (s *StatsService) Invalidate(userID string) int {
	return s.cache.DeletePrefix(StatsKeyPrefix(userID))
}

func (s *StatsService) monthStart(ctx context.Context, userID string) (int, error) {
	u, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		if u.Settings.FinancialMonthStart > 0 {
			return core.ClampMonthStart(u.Settings.FinancialMonthStart), nil
		}
		return s.defaultMonthStart, nil
	case errors.Is(err, core.ErrNotFound):
		return s.defaultMonthStart, nil
	default:
		return 0, fmt.Errorf("get user %s: %w", userID, err)
	}
}
