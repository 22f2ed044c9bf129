package services

import (
	"client-registry/internal/models"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SystemSender is the author of generated chat messages
	SystemSender = "system"
	// OnlineWindow is how long a presence heartbeat keeps an operator online
	OnlineWindow = 5 * time.Minute

	maxChatPage    = 500
	greetingPrefix = "Good morning!"
)

// ChatEntry is a chat message with its author's display name
type ChatEntry struct {
	models.ChatMessage
	FullName string `json:"full_name"`
}

// OnlineUser is an operator seen within OnlineWindow
type OnlineUser struct {
	Username string    `json:"username"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	LastSeen time.Time `json:"last_seen"`
}

// ChatService runs the shared operator chat. Scan results reach it through
// Dispatch and are posted as system or alert messages.
type ChatService struct {
	db      *gorm.DB
	retries int
	now     func() time.Time
	log     *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(db *gorm.DB, log *zap.Logger, retries int, now func() time.Time) *ChatService {
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		db:      db,
		retries: retries,
		now:     now,
		log:     log.With(zap.String("component", "chat")),
	}
}

// Send posts an operator message
func (s *ChatService) Send(ctx context.Context, username, text string) (*models.ChatMessage, error) {
	return s.post(ctx, username, text, models.ChatText)
}

// SendSystem posts an informational generated message
func (s *ChatService) SendSystem(ctx context.Context, text string) (*models.ChatMessage, error) {
	return s.post(ctx, SystemSender, text, models.ChatSystem)
}

// SendAlert posts a generated message that needs attention
func (s *ChatService) SendAlert(ctx context.Context, text string) (*models.ChatMessage, error) {
	return s.post(ctx, SystemSender, text, models.ChatAlert)
}

// Dispatch implements Dispatcher. Warnings and errors become alerts.
func (s *ChatService) Dispatch(event models.NotificationEvent) {
	post := s.SendSystem
	if event.Severity.Rank() >= models.SeverityWarning.Rank() {
		post = s.SendAlert
	}
	if _, err := post(context.Background(), event.Message); err != nil {
		s.log.Warn("Failed to post notification to chat", zap.Error(err))
	}
}

func (s *ChatService) post(ctx context.Context, sender, text string, kind models.ChatKind) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Errors: []FieldError{{Field: "text", Message: "required"}}}
	}

	msg := &models.ChatMessage{
		Username:  sender,
		Text:      text,
		Kind:      kind,
		CreatedAt: s.now().UTC(),
	}
	err := withRetry(ctx, s.retries, func() error {
		msg.ID = 0
		return s.db.WithContext(ctx).Create(msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("post chat message: %w", err)
	}
	return msg, nil
}

// Messages returns a page of messages, newest first
func (s *ChatService) Messages(ctx context.Context, limit, offset int) ([]ChatEntry, error) {
	if limit <= 0 || limit > maxChatPage {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var out []ChatEntry
	err := withRetry(ctx, s.retries, func() error {
		out = nil
		return s.db.WithContext(ctx).
			Table("chat_messages").
			Select("chat_messages.*, COALESCE(users.full_name, '') AS full_name").
			Joins("LEFT JOIN users ON users.username = chat_messages.username").
			Order("chat_messages.created_at DESC, chat_messages.id DESC").
			Limit(limit).
			Offset(offset).
			Scan(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("load chat messages: %w", err)
	}
	return out, nil
}

// UnreadCount counts messages by others that username has not read yet
func (s *ChatService) UnreadCount(ctx context.Context, username string) (int64, error) {
	var count int64
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Model(&models.ChatMessage{}).
			Where("username <> ?", username).
			Where("id > COALESCE((SELECT last_read_id FROM chat_presences WHERE username = ?), 0)", username).
			Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count unread chat messages: %w", err)
	}
	return count, nil
}

// MarkRead marks every current message as read for username
func (s *ChatService) MarkRead(ctx context.Context, username string) error {
	return withRetry(ctx, s.retries, func() error {
		var last uint
		if err := s.db.WithContext(ctx).Model(&models.ChatMessage{}).
			Select("COALESCE(MAX(id), 0)").Scan(&last).Error; err != nil {
			return err
		}
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_read_id"}),
		}).Create(&models.ChatPresence{
			Username:   username,
			LastReadID: last,
			LastSeen:   s.now().UTC(),
		}).Error
	})
}

// SetOnline records a presence heartbeat, or marks username offline
func (s *ChatService) SetOnline(ctx context.Context, username string, online bool) error {
	return withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"online", "last_seen"}),
		}).Create(&models.ChatPresence{
			Username: username,
			Online:   online,
			LastSeen: s.now().UTC(),
		}).Error
	})
}

// OnlineUsers lists operators online within OnlineWindow, by role then name
func (s *ChatService) OnlineUsers(ctx context.Context) ([]OnlineUser, error) {
	since := s.now().Add(-OnlineWindow).UTC()

	var out []OnlineUser
	err := withRetry(ctx, s.retries, func() error {
		out = nil
		return s.db.WithContext(ctx).
			Table("chat_presences").
			Select("chat_presences.username, users.full_name, users.role, chat_presences.last_seen").
			Joins("JOIN users ON users.username = chat_presences.username").
			Where("chat_presences.online = ? AND chat_presences.last_seen >= ? AND users.is_active = ?", true, since, true).
			Order("users.role, users.full_name").
			Scan(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("load online users: %w", err)
	}
	return out, nil
}

// Clear deletes the whole chat history
func (s *ChatService) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := withRetry(ctx, s.retries, func() error {
		res := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.ChatMessage{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("clear chat: %w", err)
	}
	s.log.Info("Chat history cleared", zap.Int64("messages", removed))
	return removed, nil
}

// SendDailyGreeting posts the morning greeting unless one was already posted
// today. It reports whether a message was posted.
func (s *ChatService) SendDailyGreeting(ctx context.Context) (bool, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UTC()

	var count int64
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Model(&models.ChatMessage{}).
			Where("kind = ? AND text LIKE ? AND created_at >= ?", models.ChatSystem, greetingPrefix+"%", dayStart).
			Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("check greeting: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	text := fmt.Sprintf("%s Today is %s. Have a good working day.", greetingPrefix, now.Format("02.01.2006"))
	if _, err := s.SendSystem(ctx, text); err != nil {
		return false, err
	}
	return true, nil
}
