package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/store"
)

const budgetColumns = `id, user_id, name, category_ids, amount, spent, period, start_date, end_date, rollover, alerts, is_active, created_at, updated_at`

func scanBudget(row scanner) (core.Budget, error) {
	var (
		b                   core.Budget
		categoryIDs, alerts string
		start               string
		end                 sql.NullString
		created, updated    string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &categoryIDs, &b.Amount, &b.Spent, &b.Period,
		&start, &end, &b.Rollover, &alerts, &b.IsActive, &created, &updated); err != nil {
		return core.Budget{}, err
	}
	if err := fromJSON(categoryIDs, &b.CategoryIDs); err != nil {
		return core.Budget{}, err
	}
	if err := fromJSON(alerts, &b.Alerts); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.StartDate, err = parseTime(start); err != nil {
		return core.Budget{}, err
	}
	if b.EndDate, err = parseOptTime(end); err != nil {
		return core.Budget{}, err
	}
	b.CreatedAt, b.UpdatedAt, err = stamps(created, updated)
	return b, err
}

// budgetArgs returns the JSON columns shared by insert and update.
func budgetArgs(b core.Budget) (categoryIDs, alerts string, err error) {
	if categoryIDs, err = toJSON(b.CategoryIDs); err != nil {
		return "", "", err
	}
	if alerts, err = toJSON(b.Alerts); err != nil {
		return "", "", err
	}
	return categoryIDs, alerts, nil
}

func upsertBudget(ctx context.Context, db dbtx, b core.Budget) error {
	categoryIDs, alerts, err := budgetArgs(b)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, categoryIDs, b.Amount.String(), b.Spent.String(), string(b.Period),
		formatTime(b.StartDate), formatOptTime(b.EndDate), boolInt(b.Rollover), alerts, boolInt(b.IsActive),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write budget %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.ID == "" {
		b.ID = newID()
	}
	now := s.stamp()
	b.CreatedAt, b.UpdatedAt = now, now
	if err := upsertBudget(ctx, s.db, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(s.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, notFound(err, "budget", id)
	}
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	categoryIDs, alerts, err := budgetArgs(b)
	if err != nil {
		return core.Budget{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE budgets SET user_id = ?, name = ?, category_ids = ?, amount = ?, spent = ?, period = ?, start_date = ?, end_date = ?, rollover = ?, alerts = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		b.UserID, b.Name, categoryIDs, b.Amount.String(), b.Spent.String(), string(b.Period),
		formatTime(b.StartDate), formatOptTime(b.EndDate), boolInt(b.Rollover), alerts, boolInt(b.IsActive),
		formatTime(s.stamp()), b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", b.ID, err)
	}
	if err := mustAffect(res, "budget", b.ID); err != nil {
		return core.Budget{}, err
	}
	return s.GetBudget(ctx, b.ID)
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return mustAffect(res, "budget", id)
}

func (s *Store) listBudgets(ctx context.Context, userID string, f *store.BudgetFilter) ([]core.Budget, error) {
	all, err := queryAll(ctx, s.db, scanBudget, `SELECT `+budgetColumns+` FROM budgets WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := all[:0]
	for _, b := range all {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListBudgets(ctx context.Context, userID string, f *store.BudgetFilter, opts *store.ListOptions) ([]core.Budget, error) {
	out, err := s.listBudgets(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	store.SortBudgets(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountBudgets(ctx context.Context, userID string, f *store.BudgetFilter) (int, error) {
	out, err := s.listBudgets(ctx, userID, f)
	return len(out), err
}

func (s *Store) UpdateBudgetSpent(ctx context.Context, id string, spent decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `UPDATE budgets SET spent = ?, updated_at = ? WHERE id = ?`,
		spent.String(), formatTime(s.stamp()), id)
	if err != nil {
		return fmt.Errorf("update spent of %s: %w", id, err)
	}
	return mustAffect(res, "budget", id)
}
