package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/amishk599/jobmatch/internal/model"
)

// DefaultMaxResumeChars bounds the resume text sent in a prompt.
const DefaultMaxResumeChars = 3000

var _ model.Comparator = (*LLMComparator)(nil)

// LLMComparator implements model.Comparator by prompting an LLM.
type LLMComparator struct {
	provider       LLMProvider
	tmpl           *template.Template
	maxResumeChars int
	logger         *slog.Logger
}

// NewLLMComparator creates a comparator. maxResumeChars <= 0 uses
// DefaultMaxResumeChars.
func NewLLMComparator(provider LLMProvider, tmpl *template.Template, maxResumeChars int, logger *slog.Logger) *LLMComparator {
	if maxResumeChars <= 0 {
		maxResumeChars = DefaultMaxResumeChars
	}
	return &LLMComparator{
		provider:       provider,
		tmpl:           tmpl,
		maxResumeChars: maxResumeChars,
		logger:         logger,
	}
}

type promptData struct {
	Resume      string
	Title       string
	Company     string
	Description string
}

// Compare renders the prompt, calls the provider and parses the JSON verdict.
// Provider errors are returned wrapped so rate limits stay detectable; an
// unparseable response wraps model.ErrMalformedResponse.
func (c *LLMComparator) Compare(ctx context.Context, p model.Posting, resumeText string) (model.Assessment, error) {
	description := p.Description
	if strings.TrimSpace(description) == "" {
		description = model.NoDescription
	}

	var promptBuf bytes.Buffer
	if err := c.tmpl.Execute(&promptBuf, promptData{
		Resume:      trimResume(resumeText, c.maxResumeChars),
		Title:       p.Title,
		Company:     p.Company,
		Description: description,
	}); err != nil {
		return model.Assessment{}, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := c.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return model.Assessment{}, fmt.Errorf("llm complete: %w", err)
	}

	a, err := parseAssessment(raw)
	if err != nil {
		c.logger.Debug("unparseable llm response", "title", p.Title, "response", raw)
		return model.Assessment{}, err
	}
	return a, nil
}

// trimResume cuts resume to limit runes and marks the cut with "...".
func trimResume(resume string, limit int) string {
	runes := []rune(resume)
	if len(runes) <= limit {
		return resume
	}
	return string(runes[:limit]) + "..."
}

// rawAssessment is the JSON shape requested in the prompt. Pointers tell a
// missing field from a zero value.
type rawAssessment struct {
	Suitable           *bool    `json:"suitable"`
	ResumeImprovements []string `json:"resumeImprovements"`
	MatchPercent       any      `json:"matchPercent"`
	ChanceCategory     string   `json:"chanceCategory"`
	Summary            string   `json:"summary"`
}

// stripCodeFences removes a surrounding ```json ... ``` block.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// parseAssessment decodes the LLM verdict. Missing fields take defaults,
// except matchPercent, which stays nil so the caller can tell the response
// was incomplete.
func parseAssessment(raw string) (model.Assessment, error) {
	var ra rawAssessment
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &ra); err != nil {
		return model.Assessment{}, fmt.Errorf("parse assessment: %w: %v", model.ErrMalformedResponse, err)
	}

	a := model.Assessment{
		ResumeImprovements: ra.ResumeImprovements,
		MatchPercent:       parsePercent(ra.MatchPercent),
		ChanceCategory:     model.ParseChance(ra.ChanceCategory),
		Summary:            strings.TrimSpace(ra.Summary),
	}
	if ra.Suitable != nil {
		a.Suitable = *ra.Suitable
	}
	if a.ResumeImprovements == nil {
		a.ResumeImprovements = []string{}
	}
	if a.Summary == "" {
		a.Summary = model.NoSummary
	}
	return a, nil
}

// parsePercent accepts a JSON number or a numeric string such as "75" or "75%".
func parsePercent(v any) *int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	pct := int(math.Round(f))
	return &pct
}
