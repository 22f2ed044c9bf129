package database

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Open connects to the store, brings the client table to the current layout
// and migrates the remaining tables. The returned handle is meant to be
// passed to the services; there is no package-level connection.
func Open(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if cfg.Type != "" && cfg.Type != "sqlite" {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	sqlDB, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; this also keeps ":memory:" stores on one connection.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{
		Conn: sqlDB,
	}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	report, err := MigrateClients(db, log)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate clients: %w", err)
	}
	log.Info("Client table ready",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("copied", report.Copied),
		zap.Int("fallback", report.Fallback),
		zap.Int("skipped", report.Skipped),
	)

	if err := db.AutoMigrate(
		&models.User{},
		&models.RememberToken{},
		&models.ActionLog{},
		&models.NotificationDelivery{},
		&models.Setting{},
		&models.ChatMessage{},
		&models.ChatPresence{},
	); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dsn(cfg *config.DatabaseConfig) string {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	timeout := cfg.BusyTimeoutMS
	if timeout <= 0 {
		timeout = 5000
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", path, sep, timeout)
}
