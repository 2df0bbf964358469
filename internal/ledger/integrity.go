package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fincore/internal/balance"
	"fincore/internal/core"
	"fincore/internal/store"
)

// VerifyAccount recomputes the balance of accountID from the log and
// compares it with the cached one. A mismatch is reported, never corrected.
func (c *Coordinator) VerifyAccount(ctx context.Context, accountID string, tolerance decimal.Decimal) (balance.Verification, error) {
	acc, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return balance.Verification{}, err
	}
	computed, err := c.computeBalance(ctx, acc)
	if err != nil {
		return balance.Verification{}, err
	}
	v := balance.Verify(acc.ID, acc.Balance, computed, tolerance)
	if !v.Matches {
		c.logger.WarnContext(ctx, "Account balance drifted from the transaction log",
			"account_id", acc.ID,
			"cached", acc.Balance.String(),
			"computed", computed.String(),
			"difference", v.Difference.String())
	}
	return v, nil
}

// VerifyUser checks every account of userID and returns one result per
// account. The error reports the first mismatch.
func (c *Coordinator) VerifyUser(ctx context.Context, userID string, tolerance decimal.Decimal) ([]balance.Verification, error) {
	accounts, err := c.store.ListAccounts(ctx, userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]balance.Verification, 0, len(accounts))
	var first error
	for _, a := range accounts {
		v, err := c.VerifyAccount(ctx, a.ID, tolerance)
		if err != nil {
			return out, err
		}
		if first == nil {
			first = v.Err()
		}
		out = append(out, v)
	}
	return out, first
}

// RebuildAccount overwrites the cached balance with the one derived from
// the log. It is the explicit correction for an IntegrityMismatch.
func (c *Coordinator) RebuildAccount(ctx context.Context, accountID string) (balance.Verification, error) {
	release, err := c.locks.acquire(ctx, accountID)
	if err != nil {
		return balance.Verification{}, err
	}
	defer release()

	acc, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return balance.Verification{}, err
	}
	computed, err := c.computeBalance(ctx, acc)
	if err != nil {
		return balance.Verification{}, err
	}
	v := balance.Verify(acc.ID, acc.Balance, computed, decimal.Zero)
	if !acc.Balance.Equal(computed) {
		if err := c.store.UpdateAccountBalance(ctx, acc.ID, computed); err != nil {
			return v, fmt.Errorf("update balance of %s: %w", acc.ID, err)
		}
		c.logger.InfoContext(ctx, "Account balance rebuilt",
			"account_id", acc.ID,
			"previous", acc.Balance.String(),
			"balance", computed.String())
		c.publish(ctx, EventBalanceRebuilt, core.Transaction{UserID: acc.UserID},
			Mutation{Balances: map[string]decimal.Decimal{acc.ID: computed}})
	}
	return v, nil
}

func (c *Coordinator) computeBalance(ctx context.Context, acc core.Account) (decimal.Decimal, error) {
	txs, err := c.store.ListTransactions(ctx, acc.UserID, &store.TransactionFilter{AccountID: acc.ID}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list transactions of %s: %w", acc.ID, err)
	}
	return balance.ComputeForAccount(acc.ID, acc.InitialBalance, txs, c.logger), nil
}
