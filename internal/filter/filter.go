// Package filter decides which fetched postings are worth queueing.
package filter

import (
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

var _ model.PostingFilter = (*PostingFilter)(nil)

// Rules are the keyword lists a posting is checked against. Matching is a
// case-insensitive substring test. Empty include lists match everything.
type Rules struct {
	TitleKeywords []string // title must contain one of these
	TitleExclude  []string // title must contain none of these
	Locations     []string // location must contain one of these
}

// PostingFilter applies Rules to postings.
type PostingFilter struct {
	include  []string
	exclude  []string
	location []string
}

// New returns a filter for r. Keywords are lowercased once here.
func New(r Rules) *PostingFilter {
	return &PostingFilter{
		include:  lowerAll(r.TitleKeywords),
		exclude:  lowerAll(r.TitleExclude),
		location: lowerAll(r.Locations),
	}
}

// Match reports whether p passes every rule. Exclusions win over inclusions.
func (f *PostingFilter) Match(p model.Posting) bool {
	title := strings.ToLower(p.Title)

	if containsAny(title, f.exclude) {
		return false
	}
	if len(f.include) > 0 && !containsAny(title, f.include) {
		return false
	}
	if len(f.location) > 0 && !containsAny(strings.ToLower(p.Location), f.location) {
		return false
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
