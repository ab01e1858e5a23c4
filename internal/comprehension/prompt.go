package comprehension

import (
	"fmt"
	"strings"
	"time"

	"github.com/driftline-app/driftline/internal/ollama"
)

const systemPromptTemplate = `You are a journal comprehension engine. Read the journal entry and extract every time-anchored claim as a JSON object. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Signal types:
- "feeling": an emotional state tied to a moment or upcoming date
- "event": something that happened or is scheduled to happen
- "plan": an intention the writer commits to

target_day must be one of: today, tonight, tomorrow, day_after_tomorrow, yesterday, this_weekend, next_weekend, next_week, next_month, a weekday name (monday..sunday), this_<weekday>, next_<weekday>, <month>_<day> (e.g. "march_15"), or a recurrence token: daily, every_day, weekly, weekdays, weekends, every_morning, every_evening, every_night, every_<weekday>.

sentiment must be one of: positive, negative, neutral, anxious, excited, hopeful, dreading.

Rules:
- content is a short label, five words or fewer.
- original_phrase quotes the entry verbatim.
- confidence reflects how clearly the entry states the claim, 0.0 to 1.0.
- reasoning is one sentence.
- Emit an empty signals array when the entry contains nothing time-anchored.`

// BuildPrompt constructs the chat messages for signal extraction
// against a reference timestamp.
func BuildPrompt(text string, ref time.Time) []ollama.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s, %s.\n\n[Journal Entry]\n%s",
		ref.Weekday(), ref.Format("2006-01-02"), text)

	return []ollama.Message{
		{Role: "system", Content: systemPromptTemplate},
		{Role: "user", Content: sb.String()},
	}
}
