package temporal

import (
	"strings"
	"time"
)

// MaxOccurrences bounds how many future instances a recurrence token
// expands into.
const MaxOccurrences = 4

// scanLimitDays bounds the day-by-day scan for weekday-filtered
// patterns so a filter that never matches cannot loop forever.
const scanLimitDays = 30

// ExpandPattern turns a recurrence token into up to MaxOccurrences
// future dates strictly after ref. Unknown tokens return nil; the
// caller logs and moves on, a bad token must never abort a batch.
//
// Token families: every_<weekday>, weekly, daily/every_day,
// every_morning/every_evening/every_night, weekdays/every_weekday,
// weekends/every_weekend.
func ExpandPattern(pattern string, ref time.Time) []time.Time {
	pattern = strings.ToLower(strings.TrimSpace(pattern))

	switch pattern {
	case "weekly":
		out := make([]time.Time, 0, MaxOccurrences)
		for i := 1; i <= MaxOccurrences; i++ {
			out = append(out, normalizeDay(ref.AddDate(0, 0, 7*i)))
		}
		return out
	case "daily", "every_day":
		out := make([]time.Time, 0, MaxOccurrences)
		for i := 1; i <= MaxOccurrences; i++ {
			out = append(out, normalizeDay(ref.AddDate(0, 0, i)))
		}
		return out
	case "every_morning", "every_evening", "every_night":
		hour := map[string]int{
			"every_morning": 8,
			"every_evening": 19,
			"every_night":   21,
		}[pattern]
		out := make([]time.Time, 0, MaxOccurrences)
		for i := 1; i <= MaxOccurrences; i++ {
			d := ref.AddDate(0, 0, i)
			out = append(out, time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, d.Location()))
		}
		return out
	case "weekdays", "every_weekday":
		return scanForward(ref, func(d time.Weekday) bool {
			return d != time.Saturday && d != time.Sunday
		})
	case "weekends", "every_weekend":
		return scanForward(ref, func(d time.Weekday) bool {
			return d == time.Saturday || d == time.Sunday
		})
	}

	if rest, ok := strings.CutPrefix(pattern, "every_"); ok {
		if day, ok := weekdayNames[rest]; ok {
			return scanForward(ref, func(d time.Weekday) bool { return d == day })
		}
	}

	return nil
}

// scanForward walks day-by-day from the day after ref collecting dates
// whose weekday passes the filter, stopping at MaxOccurrences or the
// scan limit, whichever comes first.
func scanForward(ref time.Time, match func(time.Weekday) bool) []time.Time {
	out := make([]time.Time, 0, MaxOccurrences)
	for i := 1; i <= scanLimitDays && len(out) < MaxOccurrences; i++ {
		d := ref.AddDate(0, 0, i)
		if match(d.Weekday()) {
			out = append(out, normalizeDay(d))
		}
	}
	return out
}

// IsRecurrenceToken reports whether token belongs to a recurrence
// family ExpandPattern understands, without expanding it.
func IsRecurrenceToken(token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	switch token {
	case "weekly", "daily", "every_day", "every_morning", "every_evening",
		"every_night", "weekdays", "every_weekday", "weekends", "every_weekend":
		return true
	}
	if rest, ok := strings.CutPrefix(token, "every_"); ok {
		_, isDay := weekdayNames[rest]
		return isDay
	}
	return false
}
