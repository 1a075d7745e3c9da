package handler

import (
	"fmt"
	"time"
)

const (
	clockSkew       = 5 * time.Minute
	minDuration     = 60 * time.Minute
	maxDuration     = 14 * 24 * time.Hour
	schedulingLimit = 365
)

// TimeValidationError is a failed schedule rule; Field names the form input
type TimeValidationError struct {
	Field   string
	Message string
}

func (e *TimeValidationError) Error() string {
	return e.Message
}

// ValidateEventTime checks an event schedule against now:
//
//  1. start is not in the past (5 minutes of clock skew allowed)
//  2. end is after start
//  3. the event lasts at least 60 minutes
//  4. the event lasts at most 14 days
//  5. start is within 365 days
func ValidateEventTime(start, end, now time.Time) error {
	if start.Before(now.Add(-clockSkew)) {
		return &TimeValidationError{Field: "startTime", Message: "Start time cannot be in the past"}
	}
	if !end.After(start) {
		return &TimeValidationError{Field: "endTime", Message: "End time must be after start time"}
	}

	duration := end.Sub(start)
	if duration < minDuration {
		return &TimeValidationError{Field: "endTime", Message: "Event must last at least 60 minutes"}
	}
	if duration > maxDuration {
		return &TimeValidationError{Field: "endTime", Message: "Event cannot last more than 14 days"}
	}

	if start.After(now.AddDate(0, 0, schedulingLimit)) {
		return &TimeValidationError{Field: "startTime", Message: "Event cannot be scheduled more than 365 days ahead"}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04", // datetime-local input
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime parses ISO8601, datetime-local or SQL datetime strings.
// Layouts without an offset are read in loc.
func ParseEventTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", value)
}
