package scheduler

import (
	"client-registry/internal/config"
	"client-registry/internal/services"
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler handles scheduled tasks
type Scheduler struct {
	mu            sync.Mutex
	cron          *cron.Cron
	scanEntry     cron.EntryID
	monitor       *services.MonitorService
	auth          *services.AuthService
	notifications *services.NotificationService
	chat          *services.ChatService
	retentionDays int
	log           *zap.Logger
}

// NewScheduler creates a new scheduler. chat may be nil.
func NewScheduler(monitor *services.MonitorService, auth *services.AuthService, notifications *services.NotificationService, chat *services.ChatService, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		monitor:       monitor,
		auth:          auth,
		notifications: notifications,
		chat:          chat,
		log:           log.With(zap.String("component", "scheduler")),
	}
}

// Start registers the scan and cleanup jobs, runs one scan immediately and
// starts the cron loop.
func (s *Scheduler) Start(cfg config.MonitorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(cfg.ScanInterval, s.RunScan)
	if err != nil {
		return err
	}
	s.scanEntry = id
	s.retentionDays = cfg.RetentionDays

	if _, err := s.cron.AddFunc(cfg.CleanupInterval, s.RunCleanup); err != nil {
		return err
	}

	go s.RunScan()

	s.cron.Start()
	s.log.Info("Scheduler started",
		zap.String("scan_interval", cfg.ScanInterval),
		zap.String("cleanup_interval", cfg.CleanupInterval),
	)
	return nil
}

// Reschedule replaces the scan job with one on the new interval
func (s *Scheduler) Reschedule(scanInterval string, retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(scanInterval, s.RunScan)
	if err != nil {
		return err
	}
	if s.scanEntry != 0 {
		s.cron.Remove(s.scanEntry)
	}
	s.scanEntry = id
	if retentionDays > 0 {
		s.retentionDays = retentionDays
	}

	s.log.Info("Scan rescheduled", zap.String("scan_interval", scanInterval))
	return nil
}

// RunScan posts the daily chat greeting if due, then runs the notification
// checks once
func (s *Scheduler) RunScan() {
	ctx := context.Background()
	s.log.Debug("Starting scheduled scan")

	if s.chat != nil {
		if _, err := s.chat.SendDailyGreeting(ctx); err != nil {
			s.log.Warn("Daily greeting failed", zap.Error(err))
		}
	}

	if _, err := s.monitor.RunChecks(ctx); err != nil {
		s.log.Error("Scheduled scan failed", zap.Error(err))
	}
}

// RunCleanup removes expired remember tokens and old read notifications
func (s *Scheduler) RunCleanup() {
	ctx := context.Background()

	removed, err := s.auth.CleanupExpiredTokens(ctx)
	if err != nil {
		s.log.Error("Token cleanup failed", zap.Error(err))
	}

	s.mu.Lock()
	days := s.retentionDays
	s.mu.Unlock()
	cleared := 0
	if days > 0 {
		cleared = s.notifications.ClearOlderThan(days)
	}

	s.log.Info("Cleanup finished",
		zap.Int64("tokens_removed", removed),
		zap.Int("notifications_cleared", cleared),
	)
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}
