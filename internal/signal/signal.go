// Package signal extracts transient, time-anchored claims from journal
// entry text and validates them before persistence or promotion.
package signal

import "time"

// Kind classifies what a signal is about.
type Kind string

const (
	KindFeeling Kind = "feeling"
	KindEvent   Kind = "event"
	KindPlan    Kind = "plan"
)

// Sentiment is the closed emotional-tone vocabulary.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentAnxious  Sentiment = "anxious"
	SentimentExcited  Sentiment = "excited"
	SentimentHopeful  Sentiment = "hopeful"
	SentimentDreading Sentiment = "dreading"
)

// MinConfidence is the floor below which proposed signals are dropped.
const MinConfidence = 0.4

// maxPhraseLen bounds the verbatim quote we keep for traceability.
const maxPhraseLen = 120

// Signal is a short-lived claim anchored to a resolved calendar date.
// Every signal that survives validation has a non-zero TargetDate and
// Confidence >= MinConfidence.
type Signal struct {
	Kind           Kind      `json:"kind"`
	Content        string    `json:"content"`
	TargetDay      string    `json:"target_day"`
	TargetDate     time.Time `json:"target_date"`
	Sentiment      Sentiment `json:"sentiment"`
	OriginalPhrase string    `json:"original_phrase"`
	Confidence     float64   `json:"confidence"`

	// Set only on instances produced by recurrence expansion.
	IsRecurringInstance bool   `json:"is_recurring_instance,omitempty"`
	RecurringPattern    string `json:"recurring_pattern,omitempty"`
	OccurrenceIndex     int    `json:"occurrence_index,omitempty"`
}

func validKind(k Kind) bool {
	switch k {
	case KindFeeling, KindEvent, KindPlan:
		return true
	}
	return false
}

func validSentiment(s Sentiment) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral,
		SentimentAnxious, SentimentExcited, SentimentHopeful, SentimentDreading:
		return true
	}
	return false
}

// truncatePhrase bounds a quote without splitting a UTF-8 sequence.
func truncatePhrase(s string) string {
	if len(s) <= maxPhraseLen {
		return s
	}
	cut := maxPhraseLen
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
