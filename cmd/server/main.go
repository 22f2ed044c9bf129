package main

import (
	"client-registry/internal/api"
	"client-registry/internal/config"
	"client-registry/internal/database"
	"client-registry/internal/logger"
	"client-registry/internal/scheduler"
	"client-registry/internal/services"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "client-registry")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("Server stopped with error", zap.Error(err))
	}
}

// loadConfig reads path, falling back to defaults when the file is absent
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(&cfg.Database, zlog)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close(db)
	zlog.Info("Database initialized", zap.String("path", cfg.Database.Path))

	// Stored settings override the file
	settingsService := services.NewSettingsService(db, zlog)
	if stored, err := settingsService.Load(ctx); err != nil {
		zlog.Warn("Failed to load settings from database", zap.Error(err))
	} else {
		cfg.ApplySettings(stored)
	}

	clientService := services.NewClientService(db, zlog, cfg.Auth.LoginRetries)
	notifyService := services.NewNotifyService(db, &cfg.Notifications, zlog)
	chatService := services.NewChatService(db, zlog, cfg.Auth.LoginRetries, nil)
	backupService := services.NewBackupService(db, cfg.Database.BackupDir, zlog, nil)
	notificationService := services.NewNotificationService(zlog, services.Dispatchers{notifyService, chatService}, nil)
	monitorService := services.NewMonitorService(clientService, notificationService, zlog, nil)
	tokenFile := services.NewTokenFile(cfg.Auth.RememberFile, nil)
	authService := services.NewAuthService(db, &cfg.Auth, tokenFile, zlog, nil)
	spreadsheetService := services.NewSpreadsheetService(clientService, zlog)

	if err := authService.EnsureDefaultAdmin(ctx, cfg.Auth.DefaultAdmin, cfg.Auth.DefaultPassword); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}

	if session, err := authService.ResumeSession(ctx); err == nil {
		zlog.Info("Remembered session found", zap.String("username", session.User.Username))
	} else if !errors.Is(err, services.ErrNoSavedSession) {
		zlog.Warn("Failed to resume remembered session", zap.Error(err))
	}

	sched := scheduler.NewScheduler(monitorService, authService, notificationService, chatService, zlog)
	if err := sched.Start(cfg.Monitor); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(zlog))

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	handler := api.NewHandler(api.Deps{
		Config:        cfg,
		Clients:       clientService,
		Monitor:       monitorService,
		Notifications: notificationService,
		Notify:        notifyService,
		Auth:          authService,
		Spreadsheet:   spreadsheetService,
		Settings:      settingsService,
		Chat:          chatService,
		Backup:        backupService,
		Scheduler:     sched,
		Log:           zlog,
	})
	api.SetupRoutes(r, handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zlog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
