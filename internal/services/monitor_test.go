package services

import (
	"client-registry/internal/models"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckPlanExpiry_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		category models.Category
		severity models.Severity
	}{
		{"expired", -1, models.CategoryPlanExpired, models.SeverityError},
		{"expires today", 0, models.CategoryPlanExpiring, models.SeverityError},
		{"one day", 1, models.CategoryPlanExpiring, models.SeverityWarning},
		{"seven days", 7, models.CategoryPlanExpiring, models.SeverityWarning},
		{"eight days", 8, models.CategoryPlanExpiring, models.SeverityInfo},
		{"thirty days", 30, models.CategoryPlanExpiring, models.SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.Client{ID: 7, LastName: "Ivanova", FirstName: "Maria", PlanEndDate: day(testToday, tt.offset)}
			got := CheckPlanExpiry([]models.Client{c}, testToday)
			require.Len(t, got, 1)
			assert.Equal(t, tt.category, got[0].Category)
			assert.Equal(t, tt.severity, got[0].Severity)
			assert.Equal(t, uint(7), got[0].ClientID)
			assert.Contains(t, got[0].Message, "Ivanova Maria")
		})
	}
}

func TestCheckPlanExpiry_Silent(t *testing.T) {
	clients := []models.Client{
		{LastName: "Active", FirstName: "A", PlanEndDate: day(testToday, 31)},
		{LastName: "Missing", FirstName: "M"},
		{LastName: "Garbage", FirstName: "G", PlanEndDate: "whenever"},
	}
	assert.Empty(t, CheckPlanExpiry(clients, testToday))
}

func TestNextBirthday(t *testing.T) {
	tests := []struct {
		name  string
		dob   time.Time
		today time.Time
		want  time.Time
	}{
		{"later this year", date(1950, 12, 1), date(2026, 10, 16), date(2026, 12, 1)},
		{"today", date(1950, 10, 16), date(2026, 10, 16), date(2026, 10, 16)},
		{"already passed wraps", date(1950, 1, 1), date(2026, 10, 16), date(2027, 1, 1)},
		{"leap day in common year", date(1948, 2, 29), date(2027, 2, 1), date(2027, 2, 28)},
		{"leap day in leap year", date(1948, 2, 29), date(2028, 2, 1), date(2028, 2, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextBirthday(tt.dob, tt.today))
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCheckBirthdays(t *testing.T) {
	today := date(2026, 12, 20)
	clients := []models.Client{
		{ID: 1, LastName: "Soon", FirstName: "S", DateOfBirth: "1950-12-25"},
		{ID: 2, LastName: "Later", FirstName: "L", DateOfBirth: "1950-01-10"},
		{ID: 3, LastName: "Far", FirstName: "F", DateOfBirth: "1950-03-01"},
		{ID: 4, LastName: "Today", FirstName: "T", DateOfBirth: "1950-12-20"},
		{ID: 5, LastName: "Bad", FirstName: "B", DateOfBirth: ""},
	}

	got := CheckBirthdays(clients, today)
	require.Len(t, got, 3)

	byID := map[uint]Candidate{}
	for _, c := range got {
		byID[c.ClientID] = c
		assert.Equal(t, models.CategoryBirthdayUpcoming, c.Category)
	}
	assert.Equal(t, models.SeverityWarning, byID[1].Severity)
	assert.Equal(t, "Soon S turns 76 in 5 days (25.12)", byID[1].Message)
	assert.Equal(t, models.SeverityInfo, byID[2].Severity)
	assert.Contains(t, byID[2].Message, "turns 77 in 21 days")
	assert.Equal(t, models.SeverityWarning, byID[4].Severity)
	assert.Equal(t, "Today T turns 76 today", byID[4].Message)
}

func TestCheckMissingContracts(t *testing.T) {
	assert.Empty(t, CheckMissingContracts([]models.Client{{LastName: "A", FirstName: "A", ContractNumber: "D-1"}}))

	one := CheckMissingContracts([]models.Client{{LastName: "A", FirstName: "B", ContractNumber: " nan "}})
	require.Len(t, one, 1)
	assert.Equal(t, "1 client has no contract number: A B", one[0].Message)
	assert.Equal(t, models.SeverityWarning, one[0].Severity)

	var many []models.Client
	for i := 0; i < 8; i++ {
		many = append(many, models.Client{LastName: fmt.Sprintf("L%d", i), FirstName: "F", ContractNumber: "-"})
	}
	many = append(many, models.Client{LastName: "Has", FirstName: "Contract", ContractNumber: "77"})
	agg := CheckMissingContracts(many)
	require.Len(t, agg, 1)
	assert.Equal(t, models.CategoryContractMissing, agg[0].Category)
	assert.Equal(t, "8 clients have no contract number: L0 F, L1 F, L2 F, L3 F, L4 F and 3 more", agg[0].Message)
}

func TestIsMissingContract(t *testing.T) {
	for _, v := range []string{"", " ", "-", "—", "0", "N/A", "none", "NULL", "nan", "Нет"} {
		assert.True(t, IsMissingContract(v), v)
	}
	for _, v := range []string{"D-17", "00123", "12"} {
		assert.False(t, IsMissingContract(v), v)
	}
}

func TestCheckReviewDue(t *testing.T) {
	start := func(daysUntilReview int) string {
		return testToday.AddDate(0, 0, daysUntilReview-ReviewOffsetDays).Format("2006-01-02")
	}
	clients := []models.Client{
		{ID: 1, LastName: "Due", FirstName: "Today", PlanStartDate: start(0)},
		{ID: 2, LastName: "Due", FirstName: "Week", PlanStartDate: start(7)},
		{ID: 3, LastName: "Due", FirstName: "Month", PlanStartDate: start(30)},
		{ID: 4, LastName: "Due", FirstName: "Later", PlanStartDate: start(31)},
		{ID: 5, LastName: "Due", FirstName: "Past", PlanStartDate: start(-1)},
		{ID: 6, LastName: "No", FirstName: "Start"},
	}

	got := CheckReviewDue(clients, testToday)
	require.Len(t, got, 3)
	assert.Equal(t, uint(1), got[0].ClientID)
	assert.Equal(t, models.SeverityWarning, got[0].Severity)
	assert.Contains(t, got[0].Message, "is due today")
	assert.Equal(t, models.SeverityWarning, got[1].Severity)
	assert.Equal(t, models.SeverityInfo, got[2].Severity)
}

func TestRunChecks_ScenarioAndDedup(t *testing.T) {
	ctx := context.Background()
	clients := newClientService(t)
	clock := &fakeClock{now: testToday}
	queue := NewNotificationService(zap.NewNop(), nil, clock.Now)
	monitor := NewMonitorService(clients, queue, zap.NewNop(), clock.Now)

	maria := ivanova()
	require.NoError(t, clients.CheckAndInsert(ctx, maria))
	assert.Equal(t, StatusSoon, Classify(maria.PlanEndDate, testToday))

	result, err := monitor.RunChecks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Clients)
	assert.Equal(t, result.Found, result.Added)

	var planEvents []models.NotificationEvent
	for _, e := range queue.GetNotifications(false) {
		if e.Category == models.CategoryPlanExpiring {
			planEvents = append(planEvents, e)
		}
	}
	require.Len(t, planEvents, 1)
	assert.Equal(t, "Service plan for Ivanova Maria expires in 10 days ("+maria.PlanEndDate+")", planEvents[0].Message)
	assert.Equal(t, models.SeverityInfo, planEvents[0].Severity)

	// A second scan within the day adds nothing.
	unread := queue.UnreadCount()
	again, err := monitor.RunChecks(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Added)
	assert.Equal(t, again.Found, again.Suppressed)
	assert.Equal(t, unread, queue.UnreadCount())

	// Within the urgent window the severity rises to warning.
	clock.Advance(3 * 24 * time.Hour)
	_, err = monitor.RunChecks(ctx)
	require.NoError(t, err)
	found := false
	for _, e := range queue.GetNotifications(true) {
		if e.Category == models.CategoryPlanExpiring && e.Severity == models.SeverityWarning {
			found = true
			assert.Contains(t, e.Message, "expires in 7 days")
		}
	}
	assert.True(t, found)
}
