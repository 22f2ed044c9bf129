package services

import (
	"client-registry/internal/models"
	"client-registry/internal/normalize"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type actorKey struct{}

// WithActor records which operator is performing writes in ctx
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}

// ClientStatus pairs a client with its plan status for display
type ClientStatus struct {
	models.Client
	Status   PlanStatus `json:"status"`
	DaysLeft *int       `json:"days_left,omitempty"`
}

// ClientStats summarizes the registry by plan status
type ClientStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Soon    int `json:"soon"`
	Expired int `json:"expired"`
	Unknown int `json:"unknown"`
}

// ClientService stores client records and guards the identity invariant.
// The duplicate check and the write are separate statements; the unique
// index on identity_key rejects anything that slips between them, and that
// rejection is reported as the same DuplicateIdentityError.
type ClientService struct {
	db      *gorm.DB
	log     *zap.Logger
	retries int
}

// NewClientService creates a new client service
func NewClientService(db *gorm.DB, log *zap.Logger, retries int) *ClientService {
	return &ClientService{
		db:      db,
		log:     log.With(zap.String("component", "clients")),
		retries: retries,
	}
}

// CheckAndInsert validates client and inserts it unless another record has
// the same identity key.
func (s *ClientService) CheckAndInsert(ctx context.Context, client *models.Client) error {
	if err := prepareClient(client); err != nil {
		return err
	}

	if existing, err := s.findConflict(ctx, client.IdentityKey, 0); err != nil {
		return err
	} else if existing != nil {
		return duplicateOf(existing)
	}

	client.ID = 0
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Create(client).Error
	})
	if err != nil {
		return s.translateWriteError(ctx, client, 0, err)
	}

	s.logAction(ctx, client.ID, "created")
	s.log.Info("Client created", zap.Uint("client_id", client.ID))
	return nil
}

// CheckAndUpdate replaces the record ownID with client. The record may
// match its own identity key; any other match is a duplicate.
func (s *ClientService) CheckAndUpdate(ctx context.Context, client *models.Client, ownID uint) error {
	existing, err := s.Get(ctx, ownID)
	if err != nil {
		return err
	}

	if err := prepareClient(client); err != nil {
		return err
	}

	if conflict, err := s.findConflict(ctx, client.IdentityKey, ownID); err != nil {
		return err
	} else if conflict != nil {
		return duplicateOf(conflict)
	}

	client.ID = ownID
	client.CreatedAt = existing.CreatedAt
	err = withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Save(client).Error
	})
	if err != nil {
		return s.translateWriteError(ctx, client, ownID, err)
	}

	s.logAction(ctx, ownID, "updated")
	s.log.Info("Client updated", zap.Uint("client_id", ownID))
	return nil
}

// Delete removes a client permanently
func (s *ClientService) Delete(ctx context.Context, id uint) error {
	var affected int64
	err := withRetry(ctx, s.retries, func() error {
		res := s.db.WithContext(ctx).Delete(&models.Client{}, id)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logAction(ctx, id, "deleted")
	s.log.Info("Client deleted", zap.Uint("client_id", id))
	return nil
}

// Get returns one client by id
func (s *ClientService) Get(ctx context.Context, id uint) (*models.Client, error) {
	var client models.Client
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).First(&client, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &client, nil
}

// List returns every client ordered by name
func (s *ClientService) List(ctx context.Context) ([]models.Client, error) {
	return s.Search(ctx, "")
}

// Search matches query against names, contract number, phone, plan dates
// and group. An empty query returns everything.
func (s *ClientService) Search(ctx context.Context, query string) ([]models.Client, error) {
	query = strings.TrimSpace(query)

	var clients []models.Client
	err := withRetry(ctx, s.retries, func() error {
		q := s.db.WithContext(ctx).Order("last_name, first_name, middle_name")
		if query != "" {
			like := "%" + query + "%"
			q = q.Where(
				"(last_name || ' ' || first_name || ' ' || middle_name) LIKE ? OR contract_number LIKE ? OR phone LIKE ? "+
					"OR plan_start_date LIKE ? OR plan_end_date LIKE ? OR group_label LIKE ?",
				like, like, like, like, like, like,
			)
		}
		clients = nil
		return q.Find(&clients).Error
	})
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	return clients, nil
}

// WithStatus classifies every client's plan against today
func WithStatus(clients []models.Client, today time.Time) []ClientStatus {
	out := make([]ClientStatus, 0, len(clients))
	for _, c := range clients {
		cs := ClientStatus{Client: c, Status: Classify(c.PlanEndDate, today)}
		if days, ok := DaysUntil(c.PlanEndDate, today); ok {
			cs.DaysLeft = &days
		}
		out = append(out, cs)
	}
	return out
}

// Stats counts clients per plan status
func (s *ClientService) Stats(ctx context.Context, today time.Time) (*ClientStats, error) {
	clients, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ClientStats{Total: len(clients)}
	for _, c := range clients {
		switch Classify(c.PlanEndDate, today) {
		case StatusActive:
			stats.Active++
		case StatusSoon:
			stats.Soon++
		case StatusExpired:
			stats.Expired++
		default:
			stats.Unknown++
		}
	}
	return stats, nil
}

// MonthCount is the number of plans that started in one month
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// MonthlyStats counts clients by the month their service plan started.
// Clients without a plan start date are left out.
func (s *ClientService) MonthlyStats(ctx context.Context) ([]MonthCount, error) {
	var out []MonthCount
	err := withRetry(ctx, s.retries, func() error {
		out = nil
		return s.db.WithContext(ctx).Model(&models.Client{}).
			Select("substr(plan_start_date, 1, 7) AS month, COUNT(*) AS count").
			Where("plan_start_date IS NOT NULL AND plan_start_date <> ''").
			Group("month").
			Order("month").
			Scan(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	return out, nil
}

// prepareClient trims and normalizes fields, then validates required ones.
// Unparsable optional dates degrade to empty.
func prepareClient(c *models.Client) error {
	c.LastName = strings.Join(strings.Fields(c.LastName), " ")
	c.FirstName = strings.Join(strings.Fields(c.FirstName), " ")
	c.MiddleName = strings.Join(strings.Fields(c.MiddleName), " ")
	c.Phone = strings.TrimSpace(c.Phone)
	c.ContractNumber = strings.TrimSpace(c.ContractNumber)
	c.GroupLabel = strings.TrimSpace(c.GroupLabel)
	c.DateOfBirth = normalize.Date(c.DateOfBirth)
	c.PlanStartDate = normalize.Date(c.PlanStartDate)
	c.PlanEndDate = normalize.Date(c.PlanEndDate)

	var errs []FieldError
	if c.LastName == "" {
		errs = append(errs, FieldError{Field: "last_name", Message: "required"})
	}
	if c.FirstName == "" {
		errs = append(errs, FieldError{Field: "first_name", Message: "required"})
	}
	if c.DateOfBirth == "" {
		errs = append(errs, FieldError{Field: "date_of_birth", Message: "required, must be a valid date"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	c.ComputeIdentityKey()
	return nil
}

func (s *ClientService) findConflict(ctx context.Context, key string, excludeID uint) (*models.Client, error) {
	var existing models.Client
	err := withRetry(ctx, s.retries, func() error {
		q := s.db.WithContext(ctx).Where("identity_key = ?", key)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		return q.First(&existing).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	return &existing, nil
}

// translateWriteError maps a storage-level uniqueness rejection to the same
// error the application-level check produces.
func (s *ClientService) translateWriteError(ctx context.Context, client *models.Client, ownID uint, err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("write client: %w", err)
	}

	s.log.Warn("Storage rejected duplicate identity", zap.String("name", client.DisplayName()))
	if conflict, lookupErr := s.findConflict(ctx, client.IdentityKey, ownID); lookupErr == nil && conflict != nil {
		return duplicateOf(conflict)
	}
	return &DuplicateIdentityError{
		DisplayName: client.DisplayName(),
		DateOfBirth: client.DateOfBirth,
	}
}

func (s *ClientService) logAction(ctx context.Context, clientID uint, action string) {
	entry := &models.ActionLog{
		ClientID:  clientID,
		Action:    action,
		Actor:     actorFrom(ctx),
		Timestamp: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.log.Warn("Failed to record client action", zap.String("action", action), zap.Error(err))
	}
}

func duplicateOf(existing *models.Client) *DuplicateIdentityError {
	return &DuplicateIdentityError{
		ConflictID:  existing.ID,
		DisplayName: existing.DisplayName(),
		DateOfBirth: existing.DateOfBirth,
	}
}
