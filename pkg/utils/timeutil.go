package utils

import (
	"strings"
	"time"
)

// JST is the Japan Standard Time location (UTC+9).
var JST *time.Location

func init() {
	var err error
	JST, err = time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		JST = time.FixedZone("JST", 9*60*60)
	}
}

// NowJST returns the current time in JST.
func NowJST() time.Time {
	return time.Now().In(JST)
}

// ToJST converts a time.Time to JST.
func ToJST(t time.Time) time.Time {
	return t.In(JST)
}

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseScheduleTimes parses a comma-separated "HH:MM,HH:MM" schedule string.
// Malformed entries are skipped; an empty result falls back to the given
// defaults.
func ParseScheduleTimes(value string, defaults []ClockTime) []ClockTime {
	var times []ClockTime
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := time.Parse("15:04", part)
		if err != nil {
			continue
		}
		times = append(times, ClockTime{Hour: t.Hour(), Minute: t.Minute()})
	}
	if len(times) == 0 {
		return defaults
	}
	return times
}

// NextRun returns the earliest upcoming occurrence of any of the schedule
// times, relative to now. A time earlier than or equal to now rolls over to
// the next day.
func NextRun(now time.Time, schedule []ClockTime) time.Time {
	now = now.In(JST)
	var next time.Time
	for _, ct := range schedule {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), ct.Hour, ct.Minute, 0, 0, JST)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}
