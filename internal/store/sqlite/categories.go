package sqlite

import (
	"context"
	"fmt"

	"fincore/internal/core"
	"fincore/internal/store"
)

const categoryColumns = `id, user_id, name, type, parent_id, icon, color, is_default, created_at, updated_at`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c                core.Category
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.ParentID, &c.Icon, &c.Color,
		&c.IsDefault, &created, &updated); err != nil {
		return core.Category{}, err
	}
	var err error
	c.CreatedAt, c.UpdatedAt, err = stamps(created, updated)
	return c, err
}

func upsertCategory(ctx context.Context, db dbtx, c core.Category) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, string(c.Type), c.ParentID, c.Icon, c.Color, boolInt(c.IsDefault),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write category %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = string(c.Type) + "-" + newID()
	}
	now := s.stamp()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := upsertCategory(ctx, s.db, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET user_id = ?, name = ?, type = ?, parent_id = ?, icon = ?, color = ?, is_default = ?, updated_at = ? WHERE id = ?`,
		c.UserID, c.Name, string(c.Type), c.ParentID, c.Icon, c.Color, boolInt(c.IsDefault), formatTime(s.stamp()), c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %s: %w", c.ID, err)
	}
	if err := mustAffect(res, "category", c.ID); err != nil {
		return core.Category{}, err
	}
	return s.GetCategory(ctx, c.ID)
}

// DeleteCategory leaves transactions and budgets pointing at the removed id.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return mustAffect(res, "category", id)
}

func (s *Store) listCategories(ctx context.Context, userID string, f *store.CategoryFilter) ([]core.Category, error) {
	withDefaults := f == nil || f.IncludeDefaults
	all, err := queryAll(ctx, s.db, scanCategory,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? OR (? AND is_default = 1)`, userID, boolInt(withDefaults))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := all[:0]
	for _, c := range all {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListCategories(ctx context.Context, userID string, f *store.CategoryFilter, opts *store.ListOptions) ([]core.Category, error) {
	out, err := s.listCategories(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	store.SortCategories(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) CountCategories(ctx context.Context, userID string, f *store.CategoryFilter) (int, error) {
	out, err := s.listCategories(ctx, userID, f)
	return len(out), err
}
