package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fincore/internal/core"
	"fincore/internal/store"
)

// MigrationContext names the guest session being upgraded and the
// authenticated account that takes over its data.
type MigrationContext struct {
	GuestID    string
	AuthUserID string
}

func (m MigrationContext) Validate() error {
	if m.GuestID == "" {
		return &core.ValidationError{Field: "guestId", Reason: "empty"}
	}
	if m.AuthUserID == "" {
		return &core.ValidationError{Field: "authUserId", Reason: "empty"}
	}
	if m.GuestID == m.AuthUserID {
		return &core.ValidationError{Field: "authUserId", Reason: "same as guest id"}
	}
	return nil
}

// GuestStore is what an upgrade touches.
type GuestStore interface {
	store.GuestMigrator
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	UpdateUser(ctx context.Context, u core.User) (core.User, error)
}

type GuestService struct {
	store  GuestStore
	logger *slog.Logger
}

func NewGuestService(s GuestStore, logger *slog.Logger) *GuestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuestService{store: s, logger: logger}
}

// Upgrade re-keys the guest's records to the authenticated user and marks
// that user authenticated, creating it with the guest's settings when it
// does not exist yet.
func (s *GuestService) Upgrade(ctx context.Context, mc MigrationContext) (store.GuestMigrationResult, error) {
	if err := mc.Validate(); err != nil {
		return store.GuestMigrationResult{Error: err.Error()}, err
	}

	res := s.store.MigrateGuestDataToUser(ctx, mc.GuestID, mc.AuthUserID)
	if !res.Success {
		return res, fmt.Errorf("migrate guest %s: %s", mc.GuestID, res.Error)
	}

	settings := core.DefaultSettings()
	if guest, err := s.store.GetUser(ctx, mc.GuestID); err == nil {
		settings = guest.Settings
	} else if !errors.Is(err, core.ErrNotFound) {
		return res, fmt.Errorf("get guest %s: %w", mc.GuestID, err)
	}

	u, err := s.store.GetUser(ctx, mc.AuthUserID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		_, err = s.store.CreateUser(ctx, core.User{ID: mc.AuthUserID, Mode: core.AuthenticatedMode, Settings: settings})
	case err == nil && u.Mode != core.AuthenticatedMode:
		u.Mode = core.AuthenticatedMode
		_, err = s.store.UpdateUser(ctx, u)
	}
	if err != nil {
		return res, fmt.Errorf("mark %s authenticated: %w", mc.AuthUserID, err)
	}

	s.logger.InfoContext(ctx, "Guest upgraded",
		"guest_id", mc.GuestID,
		"user_id", mc.AuthUserID,
		"accounts", res.MigratedCounts["accounts"],
		"transactions", res.MigratedCounts["transactions"],
		"categories", res.MigratedCounts["categories"],
		"budgets", res.MigratedCounts["budgets"],
		"goals", res.MigratedCounts["goals"])
	return res, nil
}
