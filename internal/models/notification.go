package models

import (
	"time"
)

// Category identifies which check produced a notification
type Category string

const (
	CategoryPlanExpiring     Category = "plan-expiring"
	CategoryPlanExpired      Category = "plan-expired"
	CategoryBirthdayUpcoming Category = "birthday-upcoming"
	CategoryContractMissing  Category = "contract-missing"
	CategoryReviewDue        Category = "review-due"
)

// Severity of a notification; higher rank sorts first
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities for display
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// NotificationEvent is one surfaced condition. Events live in memory only
// and are regenerated by the scan every session.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	ClientID  uint      `json:"client_id,omitempty"` // zero for aggregate events
}

// NotificationDelivery records an attempt to forward an event to an external channel
type NotificationDelivery struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	Category string    `gorm:"index" json:"category"`
	Channel  string    `json:"channel"` // email/webhook/telegram
	Content  string    `json:"content"`
	Status   string    `json:"status"` // success/failed
	SentAt   time.Time `json:"sent_at"`
}

// Setting represents a runtime configuration override
type Setting struct {
	Key   string `gorm:"primarykey" json:"key"`
	Value string `json:"value"`
}
