package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for travel dates.
const DateLayout = "2006-01-02"

// ParseClock parses an "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseDate parses a "2006-01-02" travel date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseWeekday parses an English weekday name ("sunday", "Sun", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// HebrewWeekday renders a weekday for user-facing messages.
func HebrewWeekday(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "ראשון"
	case time.Monday:
		return "שני"
	case time.Tuesday:
		return "שלישי"
	case time.Wednesday:
		return "רביעי"
	case time.Thursday:
		return "חמישי"
	case time.Friday:
		return "שישי"
	default:
		return "שבת"
	}
}
