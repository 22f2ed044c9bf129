package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		name                string
		input               string
		last, first, middle string
	}{
		{"empty", "", "", "", ""},
		{"whitespace only", "   \t ", "", "", ""},
		{"one token", "Petrov", "Petrov", "", ""},
		{"two tokens", "Ivanova Maria", "Ivanova", "Maria", ""},
		{"three tokens", "Petrov Ivan Sergeevich", "Petrov", "Ivan", "Sergeevich"},
		{"compound patronymic", "Aliev Rustam Ogly  Kamal", "Aliev", "Rustam", "Ogly Kamal"},
		{"extra spacing", "  Sidorov   Petr  ", "Sidorov", "Petr", ""},
		{"cyrillic", "Иванова Мария Петровна", "Иванова", "Мария", "Петровна"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last, first, middle := SplitFullName(tt.input)
			assert.Equal(t, tt.last, last)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.middle, middle)
		})
	}
}

func TestJoinName(t *testing.T) {
	assert.Equal(t, "Petrov Ivan Sergeevich", JoinName("Petrov", "Ivan", "Sergeevich"))
	assert.Equal(t, "Petrov Ivan", JoinName("Petrov", "Ivan", ""))
	assert.Equal(t, "", JoinName("", "", ""))
}

func TestDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2024-03-05", "2024-03-05"},
		{" 2024-03-05 ", "2024-03-05"},
		{"05.03.2024", "2024-03-05"},
		{"5.3.2024", "2024-03-05"},
		{"2024/03/05", "2024-03-05"},
		{"03/05/2024", "2024-03-05"},
		{"3/5/24", "2024-03-05"},
		{"2024-03-05 10:30:00", "2024-03-05"},
		{"2024-03-05T23:30:00+03:00", "2024-03-05"},
		{"", ""},
		{"not a date", ""},
		{"2024-02-30", ""},
		{"nan", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Date(tt.input))
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 10, 17, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, 365, DaysBetween(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}
