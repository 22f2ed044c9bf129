package models

import (
	"strconv"
	"strings"
	"time"
)

// Client represents one person enrolled in the day program
type Client struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	LastName       string    `gorm:"not null" json:"last_name"`
	FirstName      string    `gorm:"not null" json:"first_name"`
	MiddleName     string    `gorm:"not null;default:''" json:"middle_name"`
	DateOfBirth    string    `gorm:"not null" json:"date_of_birth"` // YYYY-MM-DD
	Phone          string    `json:"phone"`
	ContractNumber string    `gorm:"index:idx_clients_contract" json:"contract_number"`
	PlanStartDate  string    `json:"plan_start_date"` // YYYY-MM-DD or empty
	PlanEndDate    string    `json:"plan_end_date"`   // YYYY-MM-DD or empty
	GroupLabel     string    `json:"group_label"`
	IdentityKey    string    `gorm:"uniqueIndex:idx_clients_identity;not null" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName pins the table name the schema migrator manages
func (Client) TableName() string {
	return "clients"
}

// DisplayName returns "Last First Middle" without trailing spaces
func (c *Client) DisplayName() string {
	return strings.Join(strings.Fields(c.LastName+" "+c.FirstName+" "+c.MiddleName), " ")
}

// ComputeIdentityKey refreshes IdentityKey from the name parts and date of birth
func (c *Client) ComputeIdentityKey() string {
	c.IdentityKey = IdentityKey(c.LastName, c.FirstName, c.MiddleName, c.DateOfBirth)
	return c.IdentityKey
}

// IdentityKey folds the identity tuple into a single comparable string.
// Folding happens here rather than in SQL because SQLite only folds ASCII.
// Each part is quoted so a separator inside a name cannot shift fields.
func IdentityKey(last, first, middle, dob string) string {
	parts := []string{last, first, middle, dob}
	for i, p := range parts {
		parts[i] = strconv.Quote(strings.ToLower(strings.Join(strings.Fields(p), " ")))
	}
	return strings.Join(parts, "|")
}

// ActionLog records writes to client records
type ActionLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ClientID  uint      `gorm:"index" json:"client_id"`
	Action    string    `json:"action"` // created/updated/deleted
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}
