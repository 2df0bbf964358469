package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/stats"
	"fincore/internal/store"
)

const accountColumns = `id, user_id, name, type, initial_balance, balance, currency, is_active, created_at, updated_at`

func scanAccount(row scanner) (core.Account, error) {
	var (
		a                core.Account
		created, updated string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.InitialBalance, &a.Balance,
		&a.Currency, &a.IsActive, &created, &updated); err != nil {
		return core.Account{}, err
	}
	var err error
	a.CreatedAt, a.UpdatedAt, err = stamps(created, updated)
	return a, err
}

func upsertAccount(ctx context.Context, db dbtx, a core.Account) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Type), a.InitialBalance.String(), a.Balance.String(),
		a.Currency, boolInt(a.IsActive), formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write account %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if a.ID == "" {
		a.ID = newID()
	}
	now := s.stamp()
	a.Balance = a.InitialBalance
	a.CreatedAt, a.UpdatedAt = now, now
	if err := upsertAccount(ctx, s.db, a); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

func getAccount(ctx context.Context, db dbtx, id string) (core.Account, error) {
	a, err := scanAccount(db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return core.Account{}, notFound(err, "account", id)
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return getAccount(ctx, s.db, id)
}

// UpdateAccount leaves the cached balance alone.
func (s *Store) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET name = ?, type = ?, initial_balance = ?, currency = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		a.Name, string(a.Type), a.InitialBalance.String(), a.Currency, boolInt(a.IsActive), formatTime(s.stamp()), a.ID)
	if err != nil {
		return core.Account{}, fmt.Errorf("update account %s: %w", a.ID, err)
	}
	if err := mustAffect(res, "account", a.ID); err != nil {
		return core.Account{}, err
	}
	return s.GetAccount(ctx, a.ID)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getAccount(ctx, tx, id); err != nil {
			return err
		}
		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = ? OR to_account_id = ?`, id, id).Scan(&refs); err != nil {
			return fmt.Errorf("count references of %s: %w", id, err)
		}
		if refs > 0 {
			return &core.ValidationError{Field: "id", Reason: "account still has transactions; deactivate it instead"}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete account %s: %w", id, err)
		}
		return nil
	})
}

func (s *Store) listAccounts(ctx context.Context, userID string, f *store.AccountFilter) ([]core.Account, error) {
	all, err := queryAll(ctx, s.db, scanAccount, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := all[:0]
	for _, a := range all {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string, f *store.AccountFilter, opts *store.ListOptions) ([]core.Account, error) {
	out, err := s.listAccounts(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	store.SortAccounts(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountAccounts(ctx context.Context, userID string, f *store.AccountFilter) (int, error) {
	out, err := s.listAccounts(ctx, userID, f)
	return len(out), err
}

func (s *Store) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
		balance.String(), formatTime(s.stamp()), id)
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", id, err)
	}
	return mustAffect(res, "account", id)
}

func (s *Store) GetTotalBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	accounts, err := s.listAccounts(ctx, userID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return stats.TotalBalance(accounts), nil
}

func (s *Store) GetNetWorth(ctx context.Context, userID string) (stats.NetWorth, error) {
	accounts, err := s.listAccounts(ctx, userID, nil)
	if err != nil {
		return stats.NetWorth{}, err
	}
	return stats.Summarize(accounts), nil
}
