package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fincore/internal/core"
	"fincore/internal/migration"
	"fincore/internal/store"
)

// ownedBy restricts a query to one owner column, or to nothing when the
// owner argument is empty.
func ownedBy(column string) string {
	return ` WHERE (? = '' OR ` + column + ` = ?)`
}

// ExportDatabase snapshots the records of userID, or everything when userID
// is empty. Default categories are always included.
func (s *Store) ExportDatabase(ctx context.Context, userID string) ([]byte, error) {
	snap := core.Snapshot{ExportedAt: s.stamp(), Version: core.SnapshotVersion}
	var err error
	if snap.Users, err = queryAll(ctx, s.db, scanUser,
		`SELECT `+userColumns+` FROM users`+ownedBy("id"), userID, userID); err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	if snap.Accounts, err = queryAll(ctx, s.db, scanAccount,
		`SELECT `+accountColumns+` FROM accounts`+ownedBy("user_id"), userID, userID); err != nil {
		return nil, fmt.Errorf("export accounts: %w", err)
	}
	if snap.Categories, err = queryAll(ctx, s.db, scanCategory,
		`SELECT `+categoryColumns+` FROM categories`+ownedBy("user_id")+` OR is_default = 1`, userID, userID); err != nil {
		return nil, fmt.Errorf("export categories: %w", err)
	}
	if snap.Transactions, err = queryAll(ctx, s.db, scanTransaction,
		`SELECT `+transactionColumns+` FROM transactions`+ownedBy("user_id")+` ORDER BY date, id`, userID, userID); err != nil {
		return nil, fmt.Errorf("export transactions: %w", err)
	}
	if snap.Budgets, err = queryAll(ctx, s.db, scanBudget,
		`SELECT `+budgetColumns+` FROM budgets`+ownedBy("user_id"), userID, userID); err != nil {
		return nil, fmt.Errorf("export budgets: %w", err)
	}
	if snap.Goals, err = queryAll(ctx, s.db, scanGoal,
		`SELECT `+goalColumns+` FROM goals`+ownedBy("user_id"), userID, userID); err != nil {
		return nil, fmt.Errorf("export goals: %w", err)
	}
	if userID != "" {
		for _, u := range snap.Users {
			if u.ID == userID {
				settings := u.Settings
				snap.Settings = &settings
			}
		}
	}

	store.SortUsers(snap.Users, nil)
	store.SortAccounts(snap.Accounts, nil)
	store.SortCategories(snap.Categories, nil)
	store.SortBudgets(snap.Budgets, nil)
	store.SortGoals(snap.Goals, nil)
	return migration.EncodeSnapshot(snap)
}

// ImportDatabase upserts the whole snapshot in one SQL transaction; nothing
// is written when any record fails.
func (s *Store) ImportDatabase(ctx context.Context, data []byte, targetUserID string) (migration.MigrationReport, error) {
	snap, report, err := migration.DecodeSnapshot(data)
	if err != nil {
		return report, err
	}
	snap = migration.PrepareImport(snap, targetUserID)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range snap.Users {
			if err := upsertUser(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, a := range snap.Accounts {
			if err := upsertAccount(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, c := range snap.Categories {
			if err := upsertCategory(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, t := range snap.Transactions {
			if err := upsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, b := range snap.Budgets {
			if err := upsertBudget(ctx, tx, b); err != nil {
				return err
			}
		}
		for _, g := range snap.Goals {
			if err := upsertGoal(ctx, tx, g); err != nil {
				return err
			}
		}
		if snap.Settings == nil || targetUserID == "" {
			return nil
		}
		settings := *snap.Settings
		settings.FinancialMonthStart = core.ClampMonthStart(settings.FinancialMonthStart)
		raw, err := toJSON(settings)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET settings = ? WHERE id = ?`, raw, targetUserID); err != nil {
			return fmt.Errorf("apply imported settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("import snapshot: %w", err)
	}
	return report, nil
}

func (s *Store) ClearDatabase(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"transactions", "budgets", "goals", "categories", "accounts", "users"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// MigrateGuestDataToUser hands every record of a guest to toUserID in one SQL
// transaction. Default categories stay global.
func (s *Store) MigrateGuestDataToUser(ctx context.Context, fromGuestID, toUserID string) store.GuestMigrationResult {
	if fromGuestID == "" || toUserID == "" || fromGuestID == toUserID {
		return store.GuestMigrationResult{Error: fmt.Sprintf("invalid guest migration %q -> %q", fromGuestID, toUserID)}
	}
	statements := []struct{ key, query string }{
		{"accounts", `UPDATE accounts SET user_id = ?, updated_at = ? WHERE user_id = ?`},
		{"transactions", `UPDATE transactions SET user_id = ?, updated_at = ? WHERE user_id = ?`},
		{"categories", `UPDATE categories SET user_id = ?, updated_at = ? WHERE user_id = ? AND is_default = 0`},
		{"budgets", `UPDATE budgets SET user_id = ?, updated_at = ? WHERE user_id = ?`},
		{"goals", `UPDATE goals SET user_id = ?, updated_at = ? WHERE user_id = ?`},
	}
	now := formatTime(s.stamp())
	counts := make(map[string]int, len(statements))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, st := range statements {
			res, err := tx.ExecContext(ctx, st.query, toUserID, now, fromGuestID)
			if err != nil {
				return fmt.Errorf("migrate %s: %w", st.key, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("migrate %s: %w", st.key, err)
			}
			counts[st.key] = int(n)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Guest migration failed", "from", fromGuestID, "to", toUserID, "error", err)
		return store.GuestMigrationResult{Error: err.Error()}
	}
	return store.GuestMigrationResult{Success: true, MigratedCounts: counts}
}
