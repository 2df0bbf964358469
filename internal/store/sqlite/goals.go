package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fincore/internal/core"
	"fincore/internal/store"
)

const goalColumns = `id, user_id, name, type, target_amount, current_amount, deadline, account_id, status, created_at, updated_at`

func scanGoal(row scanner) (core.Goal, error) {
	var (
		g                core.Goal
		deadline         sql.NullString
		created, updated string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Type, &g.TargetAmount, &g.CurrentAmount,
		&deadline, &g.AccountID, &g.Status, &created, &updated); err != nil {
		return core.Goal{}, err
	}
	var err error
	if g.Deadline, err = parseOptTime(deadline); err != nil {
		return core.Goal{}, err
	}
	g.CreatedAt, g.UpdatedAt, err = stamps(created, updated)
	return g, err
}

func upsertGoal(ctx context.Context, db dbtx, g core.Goal) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, string(g.Type), g.TargetAmount.String(), g.CurrentAmount.String(),
		formatOptTime(g.Deadline), g.AccountID, string(g.Status), formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write goal %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if g.ID == "" {
		g.ID = newID()
	}
	now := s.stamp()
	g.CreatedAt, g.UpdatedAt = now, now
	if err := upsertGoal(ctx, s.db, g); err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func getGoal(ctx context.Context, db dbtx, id string) (core.Goal, error) {
	g, err := scanGoal(db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if err != nil {
		return core.Goal{}, notFound(err, "goal", id)
	}
	return g, nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	return getGoal(ctx, s.db, id)
}

// UpdateGoal skips the creation rule on amounts; a goal may reach its target.
func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if strings.TrimSpace(g.Name) == "" {
		return core.Goal{}, &core.ValidationError{Field: "name", Reason: "empty"}
	}
	if !g.Status.IsValid() {
		return core.Goal{}, &core.ValidationError{Field: "status", Reason: "unknown goal status " + string(g.Status)}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE goals SET user_id = ?, name = ?, type = ?, target_amount = ?, current_amount = ?, deadline = ?, account_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		g.UserID, g.Name, string(g.Type), g.TargetAmount.String(), g.CurrentAmount.String(),
		formatOptTime(g.Deadline), g.AccountID, string(g.Status), formatTime(s.stamp()), g.ID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal %s: %w", g.ID, err)
	}
	if err := mustAffect(res, "goal", g.ID); err != nil {
		return core.Goal{}, err
	}
	return s.GetGoal(ctx, g.ID)
}

func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	return mustAffect(res, "goal", id)
}

func (s *Store) listGoals(ctx context.Context, userID string, f *store.GoalFilter) ([]core.Goal, error) {
	all, err := queryAll(ctx, s.db, scanGoal, `SELECT `+goalColumns+` FROM goals WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := all[:0]
	for _, g := range all {
		if f.Match(g) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string, f *store.GoalFilter, opts *store.ListOptions) ([]core.Goal, error) {
	out, err := s.listGoals(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	store.SortGoals(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountGoals(ctx context.Context, userID string, f *store.GoalFilter) (int, error) {
	out, err := s.listGoals(ctx, userID, f)
	return len(out), err
}

func (s *Store) UpdateGoalAmount(ctx context.Context, id string, amount decimal.Decimal) error {
	return updateGoalAmount(ctx, s.db, id, amount, s.stamp())
}

func updateGoalAmount(ctx context.Context, db dbtx, id string, amount decimal.Decimal, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE goals SET current_amount = ?, updated_at = ? WHERE id = ?`,
		amount.String(), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update amount of goal %s: %w", id, err)
	}
	return mustAffect(res, "goal", id)
}

func (s *Store) ContributeToGoal(ctx context.Context, m store.GoalMovement) (core.Transaction, error) {
	return s.moveGoal(ctx, m, core.TxGoalContribution)
}

func (s *Store) WithdrawFromGoal(ctx context.Context, m store.GoalMovement) (core.Transaction, error) {
	return s.moveGoal(ctx, m, core.TxGoalWithdrawal)
}

// moveGoal writes the goal transaction and the new goal amount in one SQL
// transaction.
func (s *Store) moveGoal(ctx context.Context, m store.GoalMovement, typ core.TransactionType) (core.Transaction, error) {
	if err := m.Validate(); err != nil {
		return core.Transaction{}, err
	}
	var saved core.Transaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		g, err := getGoal(ctx, tx, m.GoalID)
		if err != nil {
			return err
		}
		if _, err := getAccount(ctx, tx, m.AccountID); err != nil {
			return err
		}
		next, err := store.MoveGoalAmount(g.CurrentAmount, m.Amount, typ)
		if err != nil {
			return err
		}
		if saved, err = s.insertTransaction(ctx, tx, m.Transaction(typ)); err != nil {
			return err
		}
		return updateGoalAmount(ctx, tx, g.ID, next, saved.CreatedAt)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return saved, nil
}
