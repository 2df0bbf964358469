package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fincore/internal/core"
	"fincore/internal/store"
)

const transactionColumns = `id, user_id, account_id, to_account_id, goal_id, amount, type, category_id, description, date, tags, recurring_group_id, created_at, updated_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		date, tags       string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.ToAccountID, &t.GoalID, &t.Amount, &t.Type,
		&t.CategoryID, &t.Description, &date, &tags, &t.RecurringGroupID, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Date, err = parseTime(date); err != nil {
		return core.Transaction{}, err
	}
	if err := fromJSON(tags, &t.Tags); err != nil {
		return core.Transaction{}, err
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	t.CreatedAt, t.UpdatedAt, err = stamps(created, updated)
	return t, err
}

func upsertTransaction(ctx context.Context, db dbtx, t core.Transaction) error {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := toJSON(tags)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, t.ToAccountID, t.GoalID, t.Amount.String(), string(t.Type),
		t.CategoryID, t.Description, formatTime(t.Date), rawTags, t.RecurringGroupID,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write transaction %s: %w", t.ID, err)
	}
	return nil
}

// insertTransaction stamps and writes a new transaction on db.
func (s *Store) insertTransaction(ctx context.Context, db dbtx, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := s.stamp()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := upsertTransaction(ctx, db, t); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return s.insertTransaction(ctx, s.db, t)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := toJSON(tags)
	if err != nil {
		return core.Transaction{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET user_id = ?, account_id = ?, to_account_id = ?, goal_id = ?, amount = ?, type = ?, category_id = ?, description = ?, date = ?, tags = ?, recurring_group_id = ?, updated_at = ? WHERE id = ?`,
		t.UserID, t.AccountID, t.ToAccountID, t.GoalID, t.Amount.String(), string(t.Type), t.CategoryID,
		t.Description, formatTime(t.Date), rawTags, t.RecurringGroupID, formatTime(s.stamp()), t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if err := mustAffect(res, "transaction", t.ID); err != nil {
		return core.Transaction{}, err
	}
	return s.GetTransaction(ctx, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return mustAffect(res, "transaction", id)
}

// listTransactions narrows by account in SQL and applies the rest of the
// filter in memory.
func (s *Store) listTransactions(ctx context.Context, userID string, f *store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if f != nil && f.AccountID != "" {
		query += ` AND (account_id = ? OR to_account_id = ?)`
		args = append(args, f.AccountID, f.AccountID)
	}
	all, err := queryAll(ctx, s.db, scanTransaction, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := all[:0]
	for _, t := range all {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, f *store.TransactionFilter, opts *store.ListOptions) ([]core.Transaction, error) {
	out, err := s.listTransactions(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	store.SortTransactions(out, f, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountTransactions(ctx context.Context, userID string, f *store.TransactionFilter) (int, error) {
	out, err := s.listTransactions(ctx, userID, f)
	return len(out), err
}

// ArchiveTransactions removes the listed transactions of userID in one SQL
// transaction. Ids that are gone or belong to someone else are skipped.
func (s *Store) ArchiveTransactions(ctx context.Context, userID string, ids []string) (int, error) {
	total := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
			if err != nil {
				return fmt.Errorf("archive transaction %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			total += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
