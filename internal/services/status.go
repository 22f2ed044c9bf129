package services

import (
	"client-registry/internal/normalize"
	"time"
)

// SoonWindowDays is how far ahead a plan end counts as "soon"
const SoonWindowDays = 30

// PlanStatus classifies a service plan window relative to today
type PlanStatus string

const (
	StatusActive  PlanStatus = "active"
	StatusSoon    PlanStatus = "soon"
	StatusExpired PlanStatus = "expired"
	StatusUnknown PlanStatus = "unknown"
)

// Classify maps a plan end date to a status. Both bounds of the "soon"
// window are inclusive. A missing or unparsable date is Unknown.
func Classify(endDate string, today time.Time) PlanStatus {
	days, ok := DaysUntil(endDate, today)
	if !ok {
		return StatusUnknown
	}
	switch {
	case days < 0:
		return StatusExpired
	case days <= SoonWindowDays:
		return StatusSoon
	default:
		return StatusActive
	}
}

// DaysUntil returns the calendar days from today to date; ok is false when
// the date cannot be parsed.
func DaysUntil(date string, today time.Time) (int, bool) {
	t, ok := normalize.ParseDate(date)
	if !ok {
		return 0, false
	}
	return normalize.DaysBetween(today, t), true
}
