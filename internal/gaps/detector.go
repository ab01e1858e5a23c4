// Package gaps scores under-discussed life domains and turns the worst
// one into a single, gently worded follow-up prompt.
package gaps

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"
)

const (
	// GapThreshold is the minimum score for a domain to count as a gap.
	GapThreshold = 0.7
	// MaxRecencyPenalty clamps the exponential staleness multiplier.
	MaxRecencyPenalty = 10.0
	// recencyHalfLife doubles the penalty every 14 days of silence.
	recencyHalfLife = 14.0
	// minHistoryDays: below this much journaling history the detector
	// stays silent rather than producing false positives from sparse
	// data.
	minHistoryDays = 14
)

// DomainCoverage is one domain's slice of the analytics snapshot.
type DomainCoverage struct {
	NormalizedCoverage float64
	LastMentionDate    time.Time // zero if the domain was never mentioned
	EntryCount         int
}

// CoverageSnapshot is the externally maintained per-user aggregate the
// detector consumes. LastUpdated doubles as the detector's reference
// clock so client clock skew cannot inflate recency penalties.
type CoverageSnapshot struct {
	Domains        map[string]DomainCoverage
	FirstEntryDate time.Time
	LastUpdated    time.Time
}

// CoverageSource supplies coverage snapshots. The analytics
// aggregation itself is out of scope; driftline only reads it.
type CoverageSource interface {
	CoverageSnapshot(ctx context.Context, userID string) (CoverageSnapshot, error)
}

// ExclusionChecker is the registry lookup the detector consults.
// Implemented by exclusion.Registry.
type ExclusionChecker interface {
	IsExcluded(ctx context.Context, userID, patternType string, context map[string]string) (bool, error)
}

// GapRecord is one domain's neglect verdict.
type GapRecord struct {
	Domain             string
	GapScore           float64
	LastMentionDate    time.Time
	NormalizedCoverage float64
	DaysSinceMention   int
}

// ComputeGapScore is the scoring formula:
//
//	(1 - coverage) × min(2^(days/14), MaxRecencyPenalty) × (excluded ? 0 : 1)
func ComputeGapScore(normalizedCoverage float64, daysSinceMention float64, excluded bool) float64 {
	if excluded {
		return 0
	}
	penalty := math.Min(math.Pow(2, daysSinceMention/recencyHalfLife), MaxRecencyPenalty)
	return (1 - normalizedCoverage) * penalty
}

// Detector ranks life domains by neglect severity.
type Detector struct {
	coverage   CoverageSource
	exclusions ExclusionChecker
}

// NewDetector creates a Detector over the given collaborators.
func NewDetector(coverage CoverageSource, exclusions ExclusionChecker) *Detector {
	return &Detector{coverage: coverage, exclusions: exclusions}
}

// exclusionPatternType keys domain-gap suppressions in the registry.
const exclusionPatternType = "domain_gap"

// DetectGaps returns domains whose gap score exceeds the threshold,
// sorted descending by score, truncated to maxResults after sorting
// (maxResults <= 0 means no truncation). It returns an empty result
// when the user has under two weeks of journaling history.
//
// Exclusion lookups fail open: a registry outage must degrade to "not
// excluded", never to silently suppressing every prompt.
func (d *Detector) DetectGaps(ctx context.Context, userID string, maxResults int) ([]GapRecord, error) {
	snap, err := d.coverage.CoverageSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap.FirstEntryDate.IsZero() {
		return nil, nil
	}
	ref := snap.LastUpdated
	if ref.IsZero() {
		ref = time.Now()
	}
	if ref.Sub(snap.FirstEntryDate) < minHistoryDays*24*time.Hour {
		return nil, nil
	}

	var gaps []GapRecord
	for domain, cov := range snap.Domains {
		lastMention := cov.LastMentionDate
		if lastMention.IsZero() {
			// Never mentioned: the user's entire history counts as silence.
			lastMention = snap.FirstEntryDate
		}
		days := ref.Sub(lastMention).Hours() / 24
		if days < 0 {
			days = 0
		}

		excluded, err := d.exclusions.IsExcluded(ctx, userID, exclusionPatternType,
			map[string]string{"domain": domain})
		if err != nil {
			slog.Warn("gap detection: exclusion lookup failed, treating as not excluded",
				"user_id", userID, "domain", domain, "error", err)
			excluded = false
		}

		score := ComputeGapScore(cov.NormalizedCoverage, days, excluded)
		if score < GapThreshold {
			continue
		}
		gaps = append(gaps, GapRecord{
			Domain:             domain,
			GapScore:           score,
			LastMentionDate:    cov.LastMentionDate,
			NormalizedCoverage: cov.NormalizedCoverage,
			DaysSinceMention:   int(days),
		})
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].GapScore != gaps[j].GapScore {
			return gaps[i].GapScore > gaps[j].GapScore
		}
		return gaps[i].Domain < gaps[j].Domain
	})

	if maxResults > 0 && len(gaps) > maxResults {
		gaps = gaps[:maxResults]
	}
	return gaps, nil
}
