// Package calendar holds the date helpers shared by scoring and forecasting:
// weekday indexing, seasonal periods (solar term or month) and fiscal years.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"momentum-peaks/internal/models"
)

// Scheme selects how the year is bucketed when matching historical days
type Scheme string

const (
	// SchemeSolarTerm buckets by the 24 solar terms
	SchemeSolarTerm Scheme = "solar_term"
	// SchemeMonth buckets by calendar month
	SchemeMonth Scheme = "month"
)

// ParseScheme validates a scheme name from configuration or a query string
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeSolarTerm, "":
		return SchemeSolarTerm, nil
	case SchemeMonth:
		return SchemeMonth, nil
	}
	return "", &models.ValidationError{
		Field:   "scheme",
		Value:   s,
		Message: fmt.Sprintf("unknown matching scheme %q, expected solar_term or month", s),
	}
}

// Period identifies a seasonal bucket under a scheme
type Period struct {
	Scheme Scheme `json:"scheme"`
	Index  int    `json:"index"`
	Name   string `json:"name"`
}

// PeriodOf returns the seasonal bucket of date under scheme
func PeriodOf(date time.Time, scheme Scheme) Period {
	if scheme == SchemeMonth {
		m := date.Month()
		return Period{Scheme: SchemeMonth, Index: int(m), Name: m.String()}
	}
	term := SolarTermFor(date)
	return Period{Scheme: SchemeSolarTerm, Index: term.Index, Name: term.Name}
}

// WeekdayIndex returns the Monday-first index (Mon=0 .. Sun=6) of date
func WeekdayIndex(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// DateOnly strips the clock, keeping the calendar date in UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// YearsBetween counts whole calendar years from past to target (target.Year - past.Year)
func YearsBetween(past, target time.Time) int {
	return target.Year() - past.Year()
}

// FiscalYear returns the fiscal year of date for a year starting in startMonth.
// With an April start, 2025-03-31 is FY2024 and 2025-04-01 is FY2025.
func FiscalYear(date time.Time, startMonth time.Month) int {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.April
	}
	if date.Month() >= startMonth {
		return date.Year()
	}
	return date.Year() - 1
}

// FiscalYearRange returns the first day and the first day after fiscal year fy
func FiscalYearRange(fy int, startMonth time.Month) (time.Time, time.Time) {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.April
	}
	start := time.Date(fy, startMonth, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

var dateLayouts = []string{"2006-01-02", "20060102"}

// ParseDate accepts YYYY-MM-DD or YYYYMMDD
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &models.ValidationError{
		Field:   "date",
		Value:   s,
		Message: "invalid date format, expected YYYY-MM-DD",
	}
}
