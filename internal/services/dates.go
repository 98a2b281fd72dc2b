package services

import (
	"time"

	"github.com/medtrack/go-medtrack-backend/internal/domain"
)

// dateLayout is the wire format for calendar dates.
const dateLayout = "2006-01-02"

// timeOfDayLayout is the wire format for dose times.
const timeOfDayLayout = "15:04"

// ParseDate parses a "YYYY-MM-DD" calendar date, failing with a
// ValidationError on malformed input. The returned time is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return domain.DateOnly(t), nil
}

// ValidateTimeOfDay checks an "HH:MM" dose time.
func ValidateTimeOfDay(s string) error {
	if _, err := time.Parse(timeOfDayLayout, s); err != nil {
		return Validationf("invalid time_of_day %q, expected HH:MM", s)
	}
	return nil
}

// FormatDate renders a calendar date in wire format.
func FormatDate(t time.Time) string { return domain.DateOnly(t).Format(dateLayout) }
