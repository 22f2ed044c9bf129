package services

import (
	"client-registry/internal/config"
	"client-registry/internal/database"
	"client-registry/internal/models"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackup_CreateAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clients := NewClientService(db, zap.NewNop(), 3)
	require.NoError(t, clients.CheckAndInsert(ctx, ivanova()))

	dir := filepath.Join(t.TempDir(), "backup")
	clock := &fakeClock{now: testToday}
	svc := NewBackupService(db, dir, zap.NewNop(), clock.Now)

	empty, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	path, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clients_backup_20261016_090000.db"), path)

	_, err = svc.Create(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	clock.Advance(time.Hour)
	_, err = svc.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "clients_backup_20261016_100000.db", files[0].Name)
	assert.Equal(t, "clients_backup_20261016_090000.db", files[1].Name)
	assert.Positive(t, files[1].Size)

	copyDB, err := database.Open(&config.DatabaseConfig{Type: "sqlite", Path: path}, zap.NewNop())
	require.NoError(t, err)
	defer database.Close(copyDB)
	var restored []models.Client
	require.NoError(t, copyDB.Find(&restored).Error)
	require.Len(t, restored, 1)
	assert.Equal(t, "Ivanova", restored[0].LastName)
}
