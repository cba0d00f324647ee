package model

import "strings"

// ChanceCategory is the comparator's estimate of getting the role.
type ChanceCategory string

const (
	ChanceLow    ChanceCategory = "low"
	ChanceMedium ChanceCategory = "medium"
	ChanceHigh   ChanceCategory = "high"
)

// ParseChance maps free text to a ChanceCategory, defaulting to low.
func ParseChance(s string) ChanceCategory {
	switch ChanceCategory(strings.ToLower(strings.TrimSpace(s))) {
	case ChanceHigh:
		return ChanceHigh
	case ChanceMedium:
		return ChanceMedium
	}
	return ChanceLow
}

const (
	// NoSummary is used when the comparator omits a summary.
	NoSummary = "No summary available"
	// FailedSummary is the summary of the fallback assessment.
	FailedSummary = "Failed to generate assessment"
)

// Assessment is the comparator's verdict for one posting.
type Assessment struct {
	Suitable           bool
	ResumeImprovements []string
	MatchPercent       *int // nil when the response lacked it
	ChanceCategory     ChanceCategory
	Summary            string
}

// WellFormed reports whether the assessment carries a numeric match
// percentage in [0,100].
func (a Assessment) WellFormed() bool {
	return a.MatchPercent != nil && *a.MatchPercent >= 0 && *a.MatchPercent <= 100
}

// Percent returns the match percentage, or 0 when absent.
func (a Assessment) Percent() int {
	if a.MatchPercent == nil {
		return 0
	}
	return *a.MatchPercent
}

// FallbackAssessment is returned when every comparison attempt failed.
func FallbackAssessment() Assessment {
	zero := 0
	return Assessment{
		Suitable:           false,
		ResumeImprovements: []string{},
		MatchPercent:       &zero,
		ChanceCategory:     ChanceLow,
		Summary:            FailedSummary,
	}
}

// IsFallback reports whether a is the terminal fallback assessment.
func (a Assessment) IsFallback() bool {
	return a.Summary == FailedSummary && a.Percent() == 0 && !a.Suitable
}
