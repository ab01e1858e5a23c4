// Package risk implements the longitudinal risk heuristic consulted
// before any gap prompt is shown.
package risk

import (
	"context"
	"fmt"

	"github.com/driftline-app/driftline/internal/gaps"
)

// DefaultFlagThreshold is how many safety-flagged entries in the
// recent window put a user at risk.
const DefaultFlagThreshold = 3

// Checker flags users whose recent entries show a cluster of safety
// annotations. It looks at density, not single incidents: one flagged
// entry in a month is normal journaling, several are not.
type Checker struct {
	flagThreshold int
}

func NewChecker() *Checker {
	return &Checker{flagThreshold: DefaultFlagThreshold}
}

func NewCheckerWithThreshold(threshold int) *Checker {
	if threshold < 1 {
		threshold = 1
	}
	return &Checker{flagThreshold: threshold}
}

func (c *Checker) CheckLongitudinalRisk(_ context.Context, recent []gaps.EntrySnapshot) (gaps.RiskAssessment, error) {
	var flagged, warnings int
	for _, e := range recent {
		if e.SafetyFlagged {
			flagged++
		}
		if e.WarningIndicator {
			warnings++
		}
	}

	assessment := gaps.RiskAssessment{}
	if flagged > 0 {
		assessment.Flags = append(assessment.Flags, fmt.Sprintf("safety_flagged:%d", flagged))
	}
	if warnings > 0 {
		assessment.Flags = append(assessment.Flags, fmt.Sprintf("warning_indicator:%d", warnings))
	}

	if flagged >= c.flagThreshold {
		assessment.IsAtRisk = true
		assessment.Reason = fmt.Sprintf("%d safety-flagged entries in recent window", flagged)
	}
	return assessment, nil
}
