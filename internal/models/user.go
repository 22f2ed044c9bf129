package models

import (
	"strings"
	"time"
)

// PermissionAll grants every permission
const PermissionAll = "all"

// User represents an operator account
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FullName     string     `gorm:"not null" json:"full_name"`
	Role         string     `gorm:"not null" json:"role"`
	Permissions  string     `gorm:"default:'basic'" json:"-"` // comma separated
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PermissionSet splits the stored permission list; an empty list means basic
func (u *User) PermissionSet() []string {
	var perms []string
	for _, p := range strings.Split(u.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		return []string{"basic"}
	}
	return perms
}

// RememberToken binds a hashed remember-me token to a user.
// Only the hash is stored; the raw token lives in the operator's local file.
type RememberToken struct {
	ID        uint      `gorm:"primarykey"`
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	User      *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
