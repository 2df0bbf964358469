package sqlite

import (
	"context"
	"fmt"

	"fincore/internal/core"
	"fincore/internal/store"
)

const userColumns = `id, email, display_name, mode, settings, created_at, updated_at`

func scanUser(row scanner) (core.User, error) {
	var (
		u                core.User
		settings         string
		created, updated string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Mode, &settings, &created, &updated); err != nil {
		return core.User{}, err
	}
	if err := fromJSON(settings, &u.Settings); err != nil {
		return core.User{}, err
	}
	var err error
	u.CreatedAt, u.UpdatedAt, err = stamps(created, updated)
	return u, err
}

func upsertUser(ctx context.Context, db dbtx, u core.User) error {
	settings, err := toJSON(u.Settings)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, string(u.Mode), settings, formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.Mode == "" {
		u.Mode = core.GuestMode
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.Settings == (core.UserSettings{}) {
		u.Settings = core.DefaultSettings()
	}
	u.Settings.FinancialMonthStart = core.ClampMonthStart(u.Settings.FinancialMonthStart)
	now := s.stamp()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := upsertUser(ctx, s.db, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	u.Settings.FinancialMonthStart = core.ClampMonthStart(u.Settings.FinancialMonthStart)
	settings, err := toJSON(u.Settings)
	if err != nil {
		return core.User{}, err
	}
	u.UpdatedAt = s.stamp()
	res, err := s.db.ExecContext(ctx, `UPDATE users SET email = ?, display_name = ?, mode = ?, settings = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.DisplayName, string(u.Mode), settings, formatTime(u.UpdatedAt), u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("update user %s: %w", u.ID, err)
	}
	if err := mustAffect(res, "user", u.ID); err != nil {
		return core.User{}, err
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return mustAffect(res, "user", id)
}

func (s *Store) ListUsers(ctx context.Context, opts *store.ListOptions) ([]core.User, error) {
	out, err := queryAll(ctx, s.db, scanUser, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	store.SortUsers(out, opts)
	return store.Paginate(out, opts), nil
}

func (s *Store) GetUserSettings(ctx context.Context, userID string) (core.UserSettings, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return core.UserSettings{}, err
	}
	return u.Settings, nil
}

func (s *Store) UpdateUserSettings(ctx context.Context, userID string, settings core.UserSettings) error {
	settings.FinancialMonthStart = core.ClampMonthStart(settings.FinancialMonthStart)
	raw, err := toJSON(settings)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET settings = ?, updated_at = ? WHERE id = ?`,
		raw, formatTime(s.stamp()), userID)
	if err != nil {
		return fmt.Errorf("update settings of %s: %w", userID, err)
	}
	return mustAffect(res, "user", userID)
}
