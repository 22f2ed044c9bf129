package models

import (
	"time"
)

// ChatKind distinguishes operator messages from generated ones
type ChatKind string

const (
	ChatText   ChatKind = "text"
	ChatSystem ChatKind = "system"
	ChatAlert  ChatKind = "alert"
)

// ChatMessage is one message in the shared operator chat
type ChatMessage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"index;not null" json:"username"`
	Text      string    `gorm:"not null" json:"text"`
	Kind      ChatKind  `gorm:"not null;default:'text'" json:"kind"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// ChatPresence tracks whether an operator is online and how far they have read
type ChatPresence struct {
	Username   string    `gorm:"primarykey" json:"username"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"last_seen"`
	LastReadID uint      `json:"-"`
}
