package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	backupPrefix = "clients_backup_"
	backupSuffix = ".db"
)

// BackupFile describes one snapshot in the backup directory
type BackupFile struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupService writes consistent snapshots of the store
type BackupService struct {
	db  *gorm.DB
	dir string
	now func() time.Time
	log *zap.Logger
}

// NewBackupService creates a backup service writing into dir
func NewBackupService(db *gorm.DB, dir string, log *zap.Logger, now func() time.Time) *BackupService {
	if now == nil {
		now = time.Now
	}
	if dir == "" {
		dir = "backup"
	}
	return &BackupService{
		db:  db,
		dir: dir,
		now: now,
		log: log.With(zap.String("component", "backup")),
	}
}

// Create snapshots the store into a timestamped file and returns its path.
// VACUUM INTO reads under a single transaction, so concurrent writes never
// leave the copy half-updated.
func (s *BackupService) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(s.dir, backupPrefix+s.now().Format("20060102_150405")+backupSuffix)
	if _, err := os.Stat(path); err == nil {
		return "", &ValidationError{Errors: []FieldError{{Field: "backup", Message: "a backup with this timestamp already exists"}}}
	}

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		if isContention(err) {
			return "", errors.Join(ErrStoreBusy, err)
		}
		return "", fmt.Errorf("backup: %w", err)
	}

	s.log.Info("Backup created", zap.String("path", path))
	return path, nil
}

// List returns existing backups, newest first
func (s *BackupService) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []BackupFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	out := make([]BackupFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupFile{Name: name, Size: info.Size(), CreatedAt: info.ModTime()})
	}
	// The timestamp in the name sorts chronologically.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}
