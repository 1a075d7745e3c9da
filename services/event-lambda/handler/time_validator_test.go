package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEventTime(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	base := now.AddDate(0, 0, 2)

	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		wantField string
		errorMsg  string
	}{
		{name: "valid future event", start: base, end: base.Add(2 * time.Hour)},
		{name: "within clock skew", start: now.Add(-2 * time.Minute), end: now.Add(2 * time.Hour)},
		{name: "multi-day event", start: base, end: base.AddDate(0, 0, 3)},
		{name: "past start", start: now.Add(-2 * time.Hour), end: now.Add(-time.Hour), wantField: "startTime", errorMsg: "past"},
		{name: "end before start", start: base, end: base.Add(-time.Hour), wantField: "endTime", errorMsg: "after start"},
		{name: "end equals start", start: base, end: base, wantField: "endTime", errorMsg: "after start"},
		{name: "too short", start: base, end: base.Add(15 * time.Minute), wantField: "endTime", errorMsg: "60 minutes"},
		{name: "too long", start: base, end: base.AddDate(0, 0, 15), wantField: "endTime", errorMsg: "14 days"},
		{name: "too far ahead", start: now.AddDate(0, 0, 400), end: now.AddDate(0, 0, 400).Add(2 * time.Hour), wantField: "startTime", errorMsg: "365 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEventTime(tt.start, tt.end, now)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var tve *TimeValidationError
			require.ErrorAs(t, err, &tve)
			assert.Equal(t, tt.wantField, tve.Field)
			assert.Contains(t, tve.Message, tt.errorMsg)
		})
	}
}

func TestParseEventTime(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-07-01T09:30:00Z", time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)},
		{"2026-07-01T09:30:00+07:00", time.Date(2026, 7, 1, 2, 30, 0, 0, time.UTC)},
		{"2026-07-01T09:30", time.Date(2026, 7, 1, 9, 30, 0, 0, loc)},
		{"2026-07-01 09:30:00", time.Date(2026, 7, 1, 9, 30, 0, 0, loc)},
		{"2026-07-01 09:30", time.Date(2026, 7, 1, 9, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEventTime(tt.input, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseEventTime("01/07/2026", loc)
	assert.Error(t, err)
}
