package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fincore/internal/migration"
	"fincore/internal/store"
)

// BackupService writes snapshot exports to files and loads them back.
type BackupService struct {
	store  store.Maintenance
	dir    string
	logger *slog.Logger
}

func NewBackupService(s store.Maintenance, dir string, logger *slog.Logger) *BackupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{store: s, dir: dir, logger: logger}
}

// BackupFileName names the export of userID taken at t. An empty userID
// stands for the whole database.
func BackupFileName(userID string, t time.Time) string {
	owner := userID
	if owner == "" {
		owner = "all"
	}
	return fmt.Sprintf("fincore-backup-%s-%s.json", owner, t.UTC().Format("20060102-150405"))
}

// Export writes the snapshot of userID into the backup directory and
// returns the file path.
func (s *BackupService) Export(ctx context.Context, userID string, now time.Time) (string, error) {
	data, err := s.store.ExportDatabase(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("export database: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(s.dir, BackupFileName(userID, now))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	s.logger.InfoContext(ctx, "Backup exported",
		"user_id", userID,
		"path", path,
		"bytes", len(data))
	return path, nil
}

// Import loads the backup at path, re-keyed to targetUserID when it is set.
func (s *BackupService) Import(ctx context.Context, path, targetUserID string) (migration.MigrationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return migration.MigrationReport{}, fmt.Errorf("read backup: %w", err)
	}
	report, err := s.store.ImportDatabase(ctx, data, targetUserID)
	if err != nil {
		return migration.MigrationReport{}, err
	}
	args := append([]any{"path", path, "target_user_id", targetUserID}, report.LogArgs()...)
	s.logger.InfoContext(ctx, "Backup imported", args...)
	return report, nil
}
