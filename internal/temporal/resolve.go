package temporal

import (
	"strconv"
	"strings"
	"time"
)

// monthNames maps lowercase month names to their time.Month. Used for
// month-day literal tokens such as "march_15".
var monthNames = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// ResolveTargetDay maps a relative-day token from the comprehension
// vocabulary to a concrete date, normalized to the fixed resolution
// hour. ok is false for tokens outside the vocabulary; callers drop
// the signal in that case rather than guessing.
//
// Vocabulary: today, tonight, tomorrow, day_after_tomorrow, yesterday,
// this_<weekday>, next_<weekday>, <weekday>, this_weekend,
// next_weekend, next_week, next_month, and month-day literals like
// "march_15".
func ResolveTargetDay(token string, ref time.Time) (time.Time, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return time.Time{}, false
	}

	switch token {
	case "today", "tonight":
		return normalizeDay(ref), true
	case "tomorrow":
		return normalizeDay(ref.AddDate(0, 0, 1)), true
	case "day_after_tomorrow":
		return normalizeDay(ref.AddDate(0, 0, 2)), true
	case "yesterday":
		return normalizeDay(ref.AddDate(0, 0, -1)), true
	case "this_weekend":
		if ref.Weekday() == time.Saturday || ref.Weekday() == time.Sunday {
			return normalizeDay(ref), true
		}
		return normalizeDay(upcomingWeekday(ref, time.Saturday)), true
	case "next_weekend":
		return normalizeDay(nextWeekdayStrict(ref, time.Saturday)), true
	case "next_week":
		return normalizeDay(ref.AddDate(0, 0, 7)), true
	case "next_month":
		return normalizeDay(ref.AddDate(0, 1, 0)), true
	}

	if day, ok := weekdayNames[token]; ok {
		return normalizeDay(upcomingWeekday(ref, day)), true
	}
	if rest, ok := strings.CutPrefix(token, "next_"); ok {
		if day, ok := weekdayNames[rest]; ok {
			return normalizeDay(nextWeekdayStrict(ref, day)), true
		}
	}
	if rest, ok := strings.CutPrefix(token, "this_"); ok {
		if day, ok := weekdayNames[rest]; ok {
			return normalizeDay(upcomingWeekday(ref, day)), true
		}
	}

	if date, ok := resolveMonthDay(token, ref); ok {
		return date, true
	}

	return time.Time{}, false
}

// resolveMonthDay handles "<month>_<day>" literals, choosing the next
// occurrence: this year if the date has not passed yet, next year
// otherwise.
func resolveMonthDay(token string, ref time.Time) (time.Time, bool) {
	name, dayPart, ok := strings.Cut(token, "_")
	if !ok {
		return time.Time{}, false
	}
	month, ok := monthNames[name]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayPart)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	candidate := time.Date(ref.Year(), month, day, resolvedHour, 0, 0, 0, ref.Location())
	if candidate.Month() != month {
		// Day overflowed the month (e.g. february_30).
		return time.Time{}, false
	}
	if candidate.Before(normalizeDay(ref)) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate, true
}
