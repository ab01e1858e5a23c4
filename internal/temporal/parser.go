// Package temporal recognizes and resolves time expressions in journal
// text. Everything in here is a pure function of the input text and a
// reference instant; nothing touches the wall clock directly.
package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExpressionType classifies a recognized temporal expression.
type ExpressionType string

const (
	// TypeSpecific is a single resolvable calendar date ("next Friday").
	TypeSpecific ExpressionType = "specific"
	// TypeRange is a date span ("this weekend").
	TypeRange ExpressionType = "range"
	// TypeTime is a clock time ("at 3pm").
	TypeTime ExpressionType = "time"
	// TypePeriod is a named part of a day ("this evening").
	TypePeriod ExpressionType = "time_period"
)

// Expression is one recognized temporal phrase.
type Expression struct {
	Type     ExpressionType
	Text     string // matched substring, as written
	Label    string // normalized label used for dedup ("next_friday", "15:00")
	Position int    // byte offset of the match in the source text
	Date     time.Time
	End      time.Time // set for ranges only
}

// indicatorPattern is the cheap pre-check. It must stay fast enough to
// run on every saved entry before any LLM call is considered.
var indicatorPattern = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|monday|tuesday|wednesday|thursday|friday|saturday|sunday|weekend|morning|afternoon|evening|night|week|month|year|daily|weekly|everyday|later|soon|` +
	`next|in \d+ (?:day|week|month)s?|at \d{1,2}(?::\d{2})?\s*(?:am|pm)?|\d{1,2}(?:am|pm))\b`)

// HasTemporalIndicators reports whether text contains anything worth
// running the full parser (or the comprehension model) over.
func HasTemporalIndicators(text string) bool {
	return indicatorPattern.MatchString(text)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	reNextWeekday = regexp.MustCompile(`(?i)\b(next|this)\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	reBareWeekday = regexp.MustCompile(`(?i)\b(?:on\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	reRelativeDay = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday)\b`)
	reInUnits     = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(day|week|month)s?\b`)
	reNextUnit    = regexp.MustCompile(`(?i)\bnext\s+(week|month|year)\b`)
	reWeekendSpan = regexp.MustCompile(`(?i)\b(this|next)\s+weekend\b`)
	reClockTime   = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	reBareMeridie = regexp.MustCompile(`(?i)\b(\d{1,2})(am|pm)\b`)
	reDayPeriod   = regexp.MustCompile(`(?i)\bthis\s+(morning|afternoon|evening)\b`)
)

// Parse scans text for temporal expressions relative to ref. Results
// are ordered by position in the source text, and duplicate labels are
// suppressed (first occurrence wins). Overlapping matches keep the
// more specific interpretation: "next friday" is not also reported as
// a bare "friday".
func Parse(text string, ref time.Time) []Expression {
	var found []Expression
	claimed := make([]bool, len(text))

	claim := func(start, end int) bool {
		for i := start; i < end && i < len(claimed); i++ {
			if claimed[i] {
				return false
			}
		}
		for i := start; i < end && i < len(claimed); i++ {
			claimed[i] = true
		}
		return true
	}

	// Qualified weekdays first so the bare-weekday pass cannot steal them.
	for _, m := range reNextWeekday.FindAllStringSubmatchIndex(text, -1) {
		qualifier := strings.ToLower(text[m[2]:m[3]])
		dayName := strings.ToLower(text[m[4]:m[5]])
		if !claim(m[0], m[1]) {
			continue
		}
		day := weekdayNames[dayName]
		var date time.Time
		if qualifier == "next" {
			date = nextWeekdayStrict(ref, day)
		} else {
			date = upcomingWeekday(ref, day)
		}
		found = append(found, Expression{
			Type:     TypeSpecific,
			Text:     text[m[0]:m[1]],
			Label:    qualifier + "_" + dayName,
			Position: m[0],
			Date:     normalizeDay(date),
		})
	}

	for _, m := range reWeekendSpan.FindAllStringSubmatchIndex(text, -1) {
		qualifier := strings.ToLower(text[m[2]:m[3]])
		if !claim(m[0], m[1]) {
			continue
		}
		start := upcomingWeekday(ref, time.Saturday)
		if ref.Weekday() == time.Saturday || ref.Weekday() == time.Sunday {
			start = ref
		}
		if qualifier == "next" {
			start = nextWeekdayStrict(ref, time.Saturday)
		}
		end := start.AddDate(0, 0, 1)
		if start.Weekday() == time.Sunday {
			end = start
		}
		found = append(found, Expression{
			Type:     TypeRange,
			Text:     text[m[0]:m[1]],
			Label:    qualifier + "_weekend",
			Position: m[0],
			Date:     normalizeDay(start),
			End:      normalizeDay(end),
		})
	}

	for _, m := range reRelativeDay.FindAllStringSubmatchIndex(text, -1) {
		word := strings.ToLower(text[m[2]:m[3]])
		if !claim(m[0], m[1]) {
			continue
		}
		var date time.Time
		switch word {
		case "today", "tonight":
			date = ref
		case "tomorrow":
			date = ref.AddDate(0, 0, 1)
		case "yesterday":
			date = ref.AddDate(0, 0, -1)
		}
		found = append(found, Expression{
			Type:     TypeSpecific,
			Text:     text[m[0]:m[1]],
			Label:    word,
			Position: m[0],
			Date:     normalizeDay(date),
		})
	}

	for _, m := range reInUnits.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		unit := strings.ToLower(text[m[4]:m[5]])
		var date time.Time
		switch unit {
		case "day":
			date = ref.AddDate(0, 0, n)
		case "week":
			date = ref.AddDate(0, 0, 7*n)
		case "month":
			date = ref.AddDate(0, n, 0)
		}
		found = append(found, Expression{
			Type:     TypeSpecific,
			Text:     text[m[0]:m[1]],
			Label:    fmt.Sprintf("in_%d_%s", n, unit),
			Position: m[0],
			Date:     normalizeDay(date),
		})
	}

	for _, m := range reNextUnit.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		unit := strings.ToLower(text[m[2]:m[3]])
		var date time.Time
		switch unit {
		case "week":
			date = ref.AddDate(0, 0, 7)
		case "month":
			date = ref.AddDate(0, 1, 0)
		case "year":
			date = ref.AddDate(1, 0, 0)
		}
		found = append(found, Expression{
			Type:     TypeSpecific,
			Text:     text[m[0]:m[1]],
			Label:    "next_" + unit,
			Position: m[0],
			Date:     normalizeDay(date),
		})
	}

	for _, m := range reBareWeekday.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		dayName := strings.ToLower(text[m[2]:m[3]])
		found = append(found, Expression{
			Type:     TypeSpecific,
			Text:     text[m[0]:m[1]],
			Label:    dayName,
			Position: m[0],
			Date:     normalizeDay(upcomingWeekday(ref, weekdayNames[dayName])),
		})
	}

	for _, m := range reClockTime.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		hour, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || hour > 23 {
			continue
		}
		minute := 0
		if m[4] != -1 {
			minute, _ = strconv.Atoi(text[m[4]:m[5]])
		}
		meridiem := ""
		if m[6] != -1 {
			meridiem = strings.ToLower(text[m[6]:m[7]])
		}
		date := resolveClockTime(ref, hour, minute, meridiem)
		found = append(found, Expression{
			Type:     TypeTime,
			Text:     text[m[0]:m[1]],
			Label:    date.Format("15:04"),
			Position: m[0],
			Date:     date,
		})
	}

	for _, m := range reBareMeridie.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		hour, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || hour > 12 {
			continue
		}
		meridiem := strings.ToLower(text[m[4]:m[5]])
		date := resolveClockTime(ref, hour, 0, meridiem)
		found = append(found, Expression{
			Type:     TypeTime,
			Text:     text[m[0]:m[1]],
			Label:    date.Format("15:04"),
			Position: m[0],
			Date:     date,
		})
	}

	for _, m := range reDayPeriod.FindAllStringSubmatchIndex(text, -1) {
		if !claim(m[0], m[1]) {
			continue
		}
		period := strings.ToLower(text[m[2]:m[3]])
		found = append(found, Expression{
			Type:     TypePeriod,
			Text:     text[m[0]:m[1]],
			Label:    "this_" + period,
			Position: m[0],
			Date:     time.Date(ref.Year(), ref.Month(), ref.Day(), periodHour(period), 0, 0, 0, ref.Location()),
		})
	}

	return dedupeByLabel(sortByPosition(found))
}

// resolveClockTime applies the two ambiguity rules: an hour of 1-6
// with no meridiem is assumed PM, and a time earlier than the current
// hour rolls over to the next day.
func resolveClockTime(ref time.Time, hour, minute int, meridiem string) time.Time {
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	default:
		if hour >= 1 && hour <= 6 {
			hour += 12
		}
	}
	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if hour < ref.Hour() {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func periodHour(period string) int {
	switch period {
	case "morning":
		return 8
	case "afternoon":
		return 14
	default: // evening
		return 19
	}
}

// resolvedHour is the fixed time-of-day resolved dates are normalized
// to. Noon keeps dates stable across DST edges and modest timezone
// drift between devices.
const resolvedHour = 12

// normalizeDay pins a date to the fixed resolution hour.
func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), resolvedHour, 0, 0, 0, t.Location())
}

// upcomingWeekday is the next occurrence of day on or after ref,
// excluding today only when today already is that weekday.
func upcomingWeekday(ref time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(ref.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return ref.AddDate(0, 0, delta)
}

// nextWeekdayStrict implements the "next <weekday>" disambiguation:
// the result is always at least 6 days out, so "next Monday" said on a
// Saturday does not mean the Monday two days away.
func nextWeekdayStrict(ref time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(ref.Weekday()) + 7) % 7
	if delta < 6 {
		delta += 7
	}
	return ref.AddDate(0, 0, delta)
}

func sortByPosition(exprs []Expression) []Expression {
	for i := 1; i < len(exprs); i++ {
		for j := i; j > 0 && exprs[j].Position < exprs[j-1].Position; j-- {
			exprs[j], exprs[j-1] = exprs[j-1], exprs[j]
		}
	}
	return exprs
}

func dedupeByLabel(exprs []Expression) []Expression {
	seen := make(map[string]bool, len(exprs))
	out := exprs[:0]
	for _, e := range exprs {
		if seen[e.Label] {
			continue
		}
		seen[e.Label] = true
		out = append(out, e)
	}
	return out
}
