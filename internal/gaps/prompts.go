package gaps

import (
	"strings"
	"time"
)

// Style is a prompt voice. Selection is weighted by historical
// acceptance with a uniform exploration floor; see generator.go.
type Style string

const (
	StyleGentle     Style = "gentle"
	StyleCurious    Style = "curious"
	StyleReflective Style = "reflective"
	StyleInviting   Style = "inviting"
)

// Styles lists every selectable style, in a fixed order so weighted
// selection is deterministic under a seeded random source.
var Styles = []Style{StyleGentle, StyleCurious, StyleReflective, StyleInviting}

// PromptTemplates holds the persisted prompt text per style. {domain}
// and {time} are substituted at render time. None of these strings may
// contain a blocklisted judgmental term; TestPromptTemplatesAvoidBlocklist
// enforces that invariant.
var PromptTemplates = map[Style][]string{
	StyleGentle: {
		"It's been {time} since {domain} came up in your writing. If it feels right, this could be a soft place to start today.",
		"No pressure at all; {domain} hasn't appeared here in {time}. A sentence or two is plenty, if you'd like.",
	},
	StyleCurious: {
		"I noticed {domain} hasn't come up in about {time}. What's been happening there lately?",
		"It's been {time} since you last wrote about {domain}. Anything new on that front?",
	},
	StyleReflective: {
		"Your last mention of {domain} was {time} ago. Looking back, how has that part of life been sitting with you?",
		"About {time} has passed since {domain} appeared in these pages. What has quietly changed in that time?",
	},
	StyleInviting: {
		"When you're ready, {domain} is waiting; it's been {time}. Even a small note keeps the thread alive.",
		"A gentle nudge: {domain} last showed up {time} ago. Today could be a nice moment to revisit it.",
	},
}

// BlocklistedTerms are judgment-laden words and phrases no persisted
// template may contain, case-insensitively. This is a safety
// invariant, not a style preference.
var BlocklistedTerms = []string{
	"should",
	"must",
	"have to",
	"need to",
	"neglect",
	"failing",
	"failure",
	"lazy",
	"behind on",
	"supposed to",
	"why haven't",
	"you never",
	"at least",
}

// ContainsBlocklistedTerm reports whether text contains any
// blocklisted term, case-insensitively.
func ContainsBlocklistedTerm(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range BlocklistedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// domainPhrases maps common domain keys to natural-language noun
// phrases. Unlisted domains fall back to the key with underscores
// converted to spaces.
var domainPhrases = map[string]string{
	"health":        "your health",
	"relationships": "your relationships",
	"work":          "work",
	"creativity":    "your creative life",
	"finances":      "money matters",
	"family":        "family",
	"friends":       "your friendships",
	"learning":      "learning something new",
	"rest":          "rest and downtime",
	"movement":      "moving your body",
}

func domainPhrase(domain string) string {
	if p, ok := domainPhrases[domain]; ok {
		return p
	}
	return strings.ReplaceAll(domain, "_", " ")
}

// RelativeTimePhrase turns a raw day count into the human phrasing the
// templates substitute for {time}.
func RelativeTimePhrase(days int) string {
	switch {
	case days <= 1:
		return "a day"
	case days < 7:
		return "a few days"
	case days < 11:
		return "about a week"
	case days < 18:
		return "a couple of weeks"
	case days < 25:
		return "about three weeks"
	case days < 45:
		return "about a month"
	case days < 75:
		return "a couple of months"
	case days < 330:
		return "several months"
	default:
		return "about a year"
	}
}

// season is a recognized calendar window with a framing sentence
// appended to prompts generated inside it.
type season struct {
	name      string
	startMon  time.Month
	startDay  int
	endMon    time.Month
	endDay    int
	framing   string
	wrapsYear bool
}

var seasons = []season{
	{name: "new_year", startMon: time.January, startDay: 1, endMon: time.January, endDay: 15,
		framing: "The year is still fresh; small beginnings count."},
	{name: "spring", startMon: time.March, startDay: 1, endMon: time.May, endDay: 31,
		framing: "Spring tends to stir things up; your pages can hold that."},
	{name: "summer", startMon: time.June, startDay: 1, endMon: time.August, endDay: 31,
		framing: "Summer days move fast; a quick note is enough to catch one."},
	{name: "autumn", startMon: time.September, startDay: 1, endMon: time.November, endDay: 30,
		framing: "Autumn is a natural season for taking stock."},
	{name: "winter", startMon: time.December, startDay: 1, endMon: time.February, endDay: 28,
		framing: "Winter invites slower, quieter reflection.", wrapsYear: true},
}

// SeasonalFraming returns the framing sentence for the season
// containing date, or "" when none matches. Earlier windows win, so
// the first half of January reads as new year rather than winter.
func SeasonalFraming(date time.Time) string {
	md := int(date.Month())*100 + date.Day()
	for _, s := range seasons {
		start := int(s.startMon)*100 + s.startDay
		end := int(s.endMon)*100 + s.endDay
		if s.wrapsYear {
			if md >= start || md <= end {
				return s.framing
			}
			continue
		}
		if md >= start && md <= end {
			return s.framing
		}
	}
	return ""
}

// RenderPrompt fills a template for (domain, style), substituting the
// relative-time phrase and appending seasonal framing when the date
// falls in a recognized window. pick selects among the style's
// templates; callers pass the generator's random source.
func RenderPrompt(style Style, domain string, daysSince int, date time.Time, pick func(n int) int) string {
	templates := PromptTemplates[style]
	if len(templates) == 0 {
		templates = PromptTemplates[StyleGentle]
	}
	text := templates[pick(len(templates))]
	text = strings.ReplaceAll(text, "{domain}", domainPhrase(domain))
	text = strings.ReplaceAll(text, "{time}", RelativeTimePhrase(daysSince))
	if framing := SeasonalFraming(date); framing != "" {
		text += " " + framing
	}
	return text
}
