package services

import (
	"client-registry/internal/models"
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// secretSettings are never returned in full by List
var secretSettings = map[string]bool{
	"email.password":     true,
	"telegram.bot_token": true,
}

// SettingsService stores runtime configuration overrides
type SettingsService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *gorm.DB, log *zap.Logger) *SettingsService {
	return &SettingsService{db: db, log: log.With(zap.String("component", "settings"))}
}

// Load returns every stored setting as a map
func (s *SettingsService) Load(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// List returns stored settings ordered by key with secrets masked
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Setting, 0, len(all))
	for k, v := range all {
		if secretSettings[k] && v != "" {
			v = "********"
		}
		out = append(out, models.Setting{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save upserts settings in one transaction
func (s *SettingsService) Save(ctx context.Context, settings map[string]string) error {
	rows := make([]models.Setting, 0, len(settings))
	for k, v := range settings {
		k = strings.TrimSpace(k)
		if k == "" {
			return &ValidationError{Errors: []FieldError{{Field: "key", Message: "required"}}}
		}
		rows = append(rows, models.Setting{Key: k, Value: v})
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	s.log.Info("Settings updated", zap.Int("count", len(rows)))
	return nil
}
