package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/balance"
	"fincore/internal/core"
	"fincore/internal/store"
)

// ArchiveStore is what archiving reads and writes.
type ArchiveStore interface {
	ListUsers(ctx context.Context, opts *store.ListOptions) ([]core.User, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
	ListAccounts(ctx context.Context, userID string, f *store.AccountFilter, opts *store.ListOptions) ([]core.Account, error)
	ListTransactions(ctx context.Context, userID string, f *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error)
	ArchiveTransactions(ctx context.Context, userID string, ids []string) (int, error)
}

// Locker holds account balance locks. The ledger coordinator is one.
type Locker interface {
	Lock(ctx context.Context, accountIDs ...string) (func(), error)
}

// ArchiveService removes old transactions from the log. The effects of the
// removed transactions are folded into each account's initial balance first,
// so a balance recomputed afterwards still matches the cached one. Both steps
// run under the ledger's account locks and only the folded transactions are
// removed.
//
// Archiving is not atomic: a failure between folding and removal leaves the
// initial balances raised and shows up as an integrity mismatch.
type ArchiveService struct {
	store  ArchiveStore
	locker Locker
	logger *slog.Logger
}

func NewArchiveService(s ArchiveStore, locker Locker, logger *slog.Logger) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveService{store: s, locker: locker, logger: logger}
}

func (s *ArchiveService) lock(ctx context.Context, ids []string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, ids...)
}

// ArchiveUser archives the transactions of userID dated before cutoff and
// returns how many were removed.
func (s *ArchiveService) ArchiveUser(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	txs, err := s.store.ListTransactions(ctx, userID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}
	accounts, err := s.store.ListAccounts(ctx, userID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	held := make(map[string]bool)
	for _, acc := range accounts {
		held[acc.ID] = true
	}
	for _, tx := range txs {
		if !tx.Date.Before(cutoff) {
			continue
		}
		held[tx.AccountID] = true
		if tx.ToAccountID != "" {
			held[tx.ToAccountID] = true
		}
	}
	keys := slices.Sorted(maps.Keys(held))
	release, err := s.lock(ctx, keys)
	if err != nil {
		return 0, err
	}
	defer release()

	// Re-read under the locks; the first listing only picked the accounts.
	if txs, err = s.store.ListTransactions(ctx, userID, nil, nil); err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	folds := make(map[string]decimal.Decimal)
	var archived []string
	for _, tx := range txs {
		if !tx.Date.Before(cutoff) {
			continue
		}
		if !held[tx.AccountID] || (tx.ToAccountID != "" && !held[tx.ToAccountID]) {
			s.logger.WarnContext(ctx, "Transaction touches an unlocked account, left for the next run",
				"transaction_id", tx.ID)
			continue
		}
		delta, ok := balance.Effect(tx)
		if !ok {
			s.logger.WarnContext(ctx, "Archiving transaction with unknown type",
				"transaction_id", tx.ID,
				"type", string(tx.Type))
		} else {
			folds[tx.AccountID] = folds[tx.AccountID].Add(delta)
			if tx.Type == core.TxTransfer && tx.ToAccountID != "" {
				folds[tx.ToAccountID] = folds[tx.ToAccountID].Add(balance.IncomingEffect(tx))
			}
		}
		archived = append(archived, tx.ID)
	}
	if len(archived) == 0 {
		return 0, nil
	}

	ids := slices.Sorted(maps.Keys(folds))
	for _, id := range ids {
		acc, err := s.store.GetAccount(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			s.logger.WarnContext(ctx, "Archived transactions reference a missing account", "account_id", id)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("get account %s: %w", id, err)
		}
		acc.InitialBalance = acc.InitialBalance.Add(folds[id])
		if _, err := s.store.UpdateAccount(ctx, acc); err != nil {
			return 0, fmt.Errorf("fold archived effects into %s: %w", id, err)
		}
	}

	n, err := s.store.ArchiveTransactions(ctx, userID, archived)
	if err != nil {
		return 0, fmt.Errorf("archive transactions: %w", err)
	}
	s.logger.InfoContext(ctx, "Transactions archived",
		"user_id", userID,
		"cutoff", cutoff.Format("2006-01-02"),
		"count", n,
		"accounts", len(ids))
	return n, nil
}

// ArchiveAll archives every known user. The first error stops the batch;
// users already processed stay archived.
func (s *ArchiveService) ArchiveAll(ctx context.Context, cutoff time.Time) (int, error) {
	users, err := s.store.ListUsers(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	total := 0
	for _, u := range users {
		n, err := s.ArchiveUser(ctx, u.ID, cutoff)
		if err != nil {
			return total, fmt.Errorf("archive user %s: %w", u.ID, err)
		}
		total += n
	}
	return total, nil
}
