package services

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"gorm.io/gorm"
)

const deliveryTimeout = 30 * time.Second

// Notifier forwards a notification event to one external channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, event models.NotificationEvent) error
}

// NotifyService forwards queued events to every enabled channel and records
// each attempt. It implements Dispatcher.
type NotifyService struct {
	mu        sync.RWMutex
	notifiers []Notifier
	db        *gorm.DB
	log       *zap.Logger
}

// NewNotifyService creates a new notification service
func NewNotifyService(db *gorm.DB, cfg *config.NotificationsConfig, log *zap.Logger) *NotifyService {
	s := &NotifyService{
		db:  db,
		log: log.With(zap.String("component", "notify")),
	}
	s.Reload(cfg)
	return s
}

// Reload rebuilds the channel list from cfg
func (s *NotifyService) Reload(cfg *config.NotificationsConfig) {
	notifiers := make([]Notifier, 0)

	if cfg.Email.Enabled {
		notifiers = append(notifiers, NewEmailNotifier(cfg.Email))
	}

	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, NewWebhookNotifier(cfg.Webhook))
	}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			s.log.Error("Telegram notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	s.mu.Lock()
	s.notifiers = notifiers
	s.mu.Unlock()

	s.log.Info("Notification channels configured", zap.Int("channels", len(notifiers)))
}

// Channels returns the names of the enabled channels
func (s *NotifyService) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch sends event through all enabled channels
func (s *NotifyService) Dispatch(event models.NotificationEvent) {
	if err := s.SendNotification(context.Background(), event); err != nil {
		s.log.Warn("Notification delivery failed",
			zap.String("category", string(event.Category)),
			zap.Error(err),
		)
	}
}

// SendNotification sends event through all enabled channels. It returns an
// error only when every channel failed.
func (s *NotifyService) SendNotification(ctx context.Context, event models.NotificationEvent) error {
	s.mu.RLock()
	notifiers := s.notifiers
	s.mu.RUnlock()

	var lastErr error
	successCount := 0

	for _, notifier := range notifiers {
		if err := notifier.Send(ctx, event); err != nil {
			s.log.Error("Notification failed",
				zap.String("channel", notifier.Name()),
				zap.Error(err),
			)
			lastErr = err
			s.recordDelivery(event, notifier, "failed")
			continue
		}

		s.recordDelivery(event, notifier, "success")
		successCount++
		s.log.Debug("Notification sent", zap.String("channel", notifier.Name()))
	}

	if successCount > 0 {
		return nil
	}

	return lastErr
}

// History returns the most recent delivery attempts, newest first
func (s *NotifyService) History(ctx context.Context, limit int) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery
	err := s.db.WithContext(ctx).Order("sent_at desc, id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *NotifyService) recordDelivery(event models.NotificationEvent, notifier Notifier, status string) {
	delivery := &models.NotificationDelivery{
		Category: string(event.Category),
		Channel:  notifier.Name(),
		Content:  event.Message,
		Status:   status,
		SentAt:   time.Now(),
	}
	if err := s.db.Create(delivery).Error; err != nil {
		s.log.Warn("Failed to record delivery", zap.Error(err))
	}
}

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config config.EmailConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// Name implements Notifier
func (e *EmailNotifier) Name() string { return "email" }

// Send sends email notification
func (e *EmailNotifier) Send(_ context.Context, event models.NotificationEvent) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(event.Severity)), categoryTitle(event.Category))

	body := fmt.Sprintf("%s\n\nCategory: %s\nSeverity: %s\nRaised: %s\n",
		event.Message,
		event.Category,
		event.Severity,
		event.Timestamp.Format("2006-01-02 15:04:05"),
	)

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(e.config.To, ","))
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.From, e.config.Password, e.config.SMTPHost)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message))
	// Some providers answer "short response" after accepting the message.
	if err != nil && !strings.Contains(err.Error(), "short response") {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// WebhookNotifier posts events as JSON
type WebhookNotifier struct {
	config config.WebhookConfig
	client *resty.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		client: resty.New().SetTimeout(deliveryTimeout),
	}
}

// Name implements Notifier
func (w *WebhookNotifier) Name() string { return "webhook" }

// Send sends webhook notification
func (w *WebhookNotifier) Send(ctx context.Context, event models.NotificationEvent) error {
	payload := map[string]interface{}{
		"id":        event.ID,
		"category":  event.Category,
		"severity":  event.Severity,
		"message":   event.Message,
		"client_id": event.ClientID,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.config.URL)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	return nil
}

// TelegramNotifier sends Telegram notifications, optionally through a SOCKS5 proxy
type TelegramNotifier struct {
	config config.TelegramConfig
	client *resty.Client
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	client := resty.New().SetTimeout(deliveryTimeout)

	if cfg.Proxy != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		client.SetTransport(&http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		})
	}

	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{config: cfg, client: client}, nil
}

// Name implements Notifier
func (t *TelegramNotifier) Name() string { return "telegram" }

// Send sends Telegram notification
func (t *TelegramNotifier) Send(ctx context.Context, event models.NotificationEvent) error {
	text := fmt.Sprintf("%s %s\n\n%s", severityMark(event.Severity), categoryTitle(event.Category), event.Message)

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.config.APIURL, "/"), t.config.BotToken)

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id": t.config.ChatID,
			"text":    text,
		}).
		Post(apiURL)
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode())
	}

	return nil
}

func categoryTitle(c models.Category) string {
	switch c {
	case models.CategoryPlanExpiring:
		return "Service plan expiring"
	case models.CategoryPlanExpired:
		return "Service plan expired"
	case models.CategoryBirthdayUpcoming:
		return "Upcoming birthday"
	case models.CategoryContractMissing:
		return "Missing contract numbers"
	case models.CategoryReviewDue:
		return "Plan review due"
	}
	return string(c)
}

func severityMark(s models.Severity) string {
	switch s {
	case models.SeverityError:
		return "🔴"
	case models.SeverityWarning:
		return "🟡"
	}
	return "🟢"
}
