package services

import (
	"client-registry/internal/models"
	"client-registry/internal/normalize"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// UrgentWindowDays splits warning from info for every dated check
	UrgentWindowDays = 7
	// ReviewOffsetDays is the implicit review point after a plan starts
	ReviewOffsetDays = 180
	// missingContractNames caps how many people the aggregate event names
	missingContractNames = 5
)

// contractPlaceholders are values treated as "no contract number"
var contractPlaceholders = map[string]bool{
	"": true, "-": true, "—": true, "–": true, "0": true,
	"n/a": true, "na": true, "none": true, "null": true, "nan": true, "нет": true,
}

// Candidate is a condition found by a check, before queue deduplication
type Candidate struct {
	Category models.Category
	Severity models.Severity
	Message  string
	ClientID uint
}

// ScanResult summarizes one RunChecks pass
type ScanResult struct {
	Clients    int `json:"clients"`
	Found      int `json:"found"`
	Added      int `json:"added"`
	Suppressed int `json:"suppressed"`
}

// MonitorService runs the fixed battery of checks over all client records
type MonitorService struct {
	clients       *ClientService
	notifications *NotificationService
	now           func() time.Time
	log           *zap.Logger
}

// NewMonitorService creates a new monitoring service
func NewMonitorService(clients *ClientService, notifications *NotificationService, log *zap.Logger, now func() time.Time) *MonitorService {
	if now == nil {
		now = time.Now
	}
	return &MonitorService{
		clients:       clients,
		notifications: notifications,
		now:           now,
		log:           log.With(zap.String("component", "monitor")),
	}
}

// RunChecks loads every client, runs all checks and queues what they find.
// Safe to call repeatedly: the queue suppresses repeats within a day.
func (s *MonitorService) RunChecks(ctx context.Context) (*ScanResult, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clients: %w", err)
	}

	today := s.now()
	candidates := Scan(clients, today)

	result := &ScanResult{Clients: len(clients), Found: len(candidates)}
	for _, c := range candidates {
		if _, added := s.notifications.Add(c.Category, c.Severity, c.Message, c.ClientID); added {
			result.Added++
		} else {
			result.Suppressed++
		}
	}

	s.log.Info("Notification scan finished",
		zap.Int("clients", result.Clients),
		zap.Int("found", result.Found),
		zap.Int("added", result.Added),
	)
	return result, nil
}

// Scan runs every check against clients
func Scan(clients []models.Client, today time.Time) []Candidate {
	var out []Candidate
	out = append(out, CheckPlanExpiry(clients, today)...)
	out = append(out, CheckBirthdays(clients, today)...)
	out = append(out, CheckMissingContracts(clients)...)
	out = append(out, CheckReviewDue(clients, today)...)
	return out
}

// CheckPlanExpiry reports plans that ended, end today, or end within the
// soon window.
func CheckPlanExpiry(clients []models.Client, today time.Time) []Candidate {
	var out []Candidate
	for _, c := range clients {
		status := Classify(c.PlanEndDate, today)
		if status == StatusUnknown || status == StatusActive {
			continue
		}
		days, _ := DaysUntil(c.PlanEndDate, today)
		name := c.DisplayName()

		switch {
		case status == StatusExpired:
			out = append(out, Candidate{
				Category: models.CategoryPlanExpired,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("Service plan for %s expired on %s", name, c.PlanEndDate),
				ClientID: c.ID,
			})
		case days == 0:
			out = append(out, Candidate{
				Category: models.CategoryPlanExpiring,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("Service plan for %s expires today (%s)", name, c.PlanEndDate),
				ClientID: c.ID,
			})
		default:
			out = append(out, Candidate{
				Category: models.CategoryPlanExpiring,
				Severity: tierSeverity(days),
				Message:  fmt.Sprintf("Service plan for %s expires in %d days (%s)", name, days, c.PlanEndDate),
				ClientID: c.ID,
			})
		}
	}
	return out
}

// CheckBirthdays reports birthdays within the next SoonWindowDays days
func CheckBirthdays(clients []models.Client, today time.Time) []Candidate {
	var out []Candidate
	for _, c := range clients {
		dob, ok := normalize.ParseDate(c.DateOfBirth)
		if !ok {
			continue
		}
		next := NextBirthday(dob, today)
		days := normalize.DaysBetween(today, next)
		if days > SoonWindowDays {
			continue
		}

		age := next.Year() - dob.Year()
		var msg string
		if days == 0 {
			msg = fmt.Sprintf("%s turns %d today", c.DisplayName(), age)
		} else {
			msg = fmt.Sprintf("%s turns %d in %d days (%s)", c.DisplayName(), age, days, next.Format("02.01"))
		}
		out = append(out, Candidate{
			Category: models.CategoryBirthdayUpcoming,
			Severity: tierSeverity(days),
			Message:  msg,
			ClientID: c.ID,
		})
	}
	return out
}

// NextBirthday returns the first occurrence of dob's month and day on or
// after today. February 29 falls on February 28 in common years.
func NextBirthday(dob, today time.Time) time.Time {
	today = normalize.Day(today)
	next := anniversary(dob, today.Year())
	if next.Before(today) {
		next = anniversary(dob, today.Year()+1)
	}
	return next
}

func anniversary(dob time.Time, year int) time.Time {
	month, d := dob.Month(), dob.Day()
	if month == time.February && d == 29 && !isLeap(year) {
		d = 28
	}
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// CheckMissingContracts emits one aggregate event for every client whose
// contract number is empty or a placeholder.
func CheckMissingContracts(clients []models.Client) []Candidate {
	var names []string
	for _, c := range clients {
		if IsMissingContract(c.ContractNumber) {
			names = append(names, c.DisplayName())
		}
	}
	if len(names) == 0 {
		return nil
	}

	var msg string
	if len(names) == 1 {
		msg = "1 client has no contract number: " + names[0]
	} else {
		shown := names
		if len(shown) > missingContractNames {
			shown = shown[:missingContractNames]
		}
		msg = fmt.Sprintf("%d clients have no contract number: %s", len(names), strings.Join(shown, ", "))
		if rest := len(names) - len(shown); rest > 0 {
			msg += fmt.Sprintf(" and %d more", rest)
		}
	}

	return []Candidate{{
		Category: models.CategoryContractMissing,
		Severity: models.SeverityWarning,
		Message:  msg,
	}}
}

// IsMissingContract reports whether a contract number is empty or a placeholder
func IsMissingContract(contract string) bool {
	return contractPlaceholders[strings.ToLower(strings.TrimSpace(contract))]
}

// CheckReviewDue reports plan reviews (start + ReviewOffsetDays) falling
// within the next SoonWindowDays days.
func CheckReviewDue(clients []models.Client, today time.Time) []Candidate {
	var out []Candidate
	for _, c := range clients {
		start, ok := normalize.ParseDate(c.PlanStartDate)
		if !ok {
			continue
		}
		review := start.AddDate(0, 0, ReviewOffsetDays)
		days := normalize.DaysBetween(today, review)
		if days < 0 || days > SoonWindowDays {
			continue
		}

		var msg string
		if days == 0 {
			msg = fmt.Sprintf("Service plan review for %s is due today (%s)", c.DisplayName(), review.Format(normalize.DateLayout))
		} else {
			msg = fmt.Sprintf("Service plan review for %s is due in %d days (%s)", c.DisplayName(), days, review.Format(normalize.DateLayout))
		}
		out = append(out, Candidate{
			Category: models.CategoryReviewDue,
			Severity: tierSeverity(days),
			Message:  msg,
			ClientID: c.ID,
		})
	}
	return out
}

func tierSeverity(days int) models.Severity {
	if days <= UrgentWindowDays {
		return models.SeverityWarning
	}
	return models.SeverityInfo
}
