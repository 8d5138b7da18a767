package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// ParseEventDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the
// calendar day. A timestamp keeps the day in its own offset, so two requests
// for different times of the same day name the same slot.
func ParseEventDate(s string) (string, error) {
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(DateLayout), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEventDate, s)
}

// CheckLeadTime requires the event day to fall at least minLeadDays after
// today's date in UTC, and strictly in the future.
func CheckLeadTime(eventDate string, minLeadDays int, now time.Time) error {
	d, err := time.Parse(DateLayout, eventDate)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEventDate, eventDate)
	}
	n := now.UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	if !d.After(today) {
		return fmt.Errorf("%w: %s is not in the future", ErrInvalidEventDate, eventDate)
	}
	if minLeadDays > 0 && d.Before(today.AddDate(0, 0, minLeadDays)) {
		return fmt.Errorf("%w: %s is less than %d days away", ErrLeadTime, eventDate, minLeadDays)
	}
	return nil
}
