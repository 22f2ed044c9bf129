// Package normalize holds the total parsing helpers shared by every path
// that accepts free text: names and dates never fail, they degrade to "".
package normalize

import (
	"strings"
	"time"
)

// DateLayout is the storage form of every date column
const DateLayout = "2006-01-02"

// dateFormats are tried in order. Dotted dates are day-first, slashed dates
// are month-first, matching how spreadsheets exported by the registry read.
var dateFormats = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-06",
}

// SplitFullName splits a free-text full name into last, first and middle
// parts. One token is a last name, two are last and first, anything after
// the second token is kept together as the middle name.
func SplitFullName(full string) (last, first, middle string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], strings.Join(parts[2:], " ")
	}
}

// JoinName is the inverse of SplitFullName
func JoinName(last, first, middle string) string {
	return strings.Join(strings.Fields(last+" "+first+" "+middle), " ")
}

// ParseDate parses a date in any accepted format and returns it as midnight UTC
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Date normalizes value to YYYY-MM-DD, or "" when it cannot be parsed
func Date(value string) string {
	t, ok := ParseDate(value)
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}

// Day truncates t to its calendar date, expressed as midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
