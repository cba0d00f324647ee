package notifier

import (
	"fmt"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// MaxMessageChars is the longest text posted to Slack before truncation.
const MaxMessageChars = 3900

const truncatedSuffix = "\n…(truncated)"

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeSlack escapes the characters Slack treats as control sequences.
func escapeSlack(s string) string {
	return slackEscaper.Replace(s)
}

// chanceLabel maps a chance category to its emoji label.
func chanceLabel(c model.ChanceCategory) string {
	switch c {
	case model.ChanceHigh:
		return "🟢 High"
	case model.ChanceMedium:
		return "🟡 Medium"
	case model.ChanceLow:
		return "🔴 Low"
	}
	return "N/A"
}

// FormatMatch renders the Slack mrkdwn message for one assessed record.
func FormatMatch(rec model.QueueRecord, a model.Assessment) string {
	match := "N/A"
	if a.MatchPercent != nil {
		match = fmt.Sprintf("%d%%", *a.MatchPercent)
	}
	suitable := "*No*"
	if a.Suitable {
		suitable = "*Yes*"
	}
	summary := a.Summary
	if summary == "" {
		summary = "N/A"
	}

	improvements := "None"
	if len(a.ResumeImprovements) > 0 {
		lines := make([]string, len(a.ResumeImprovements))
		for i, imp := range a.ResumeImprovements {
			lines[i] = "• " + escapeSlack(imp)
		}
		improvements = strings.Join(lines, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":briefcase: *Job:* *%s* at *%s*\n", escapeSlack(rec.Title), escapeSlack(rec.Company))
	fmt.Fprintf(&b, ":link: *URL:* <%s>\n", rec.URL)
	fmt.Fprintf(&b, ":white_check_mark: *Suitable:* %s\n", suitable)
	fmt.Fprintf(&b, ":bar_chart: *Match Percentage:* %s\n", match)
	fmt.Fprintf(&b, ":chart_with_upwards_trend: *Chances of Getting Role:* %s\n", chanceLabel(a.ChanceCategory))
	fmt.Fprintf(&b, "*Summary:*\n%s\n", escapeSlack(summary))
	fmt.Fprintf(&b, "*Resume Improvements:*\n%s\n", improvements)
	b.WriteString("──────────────────────────────")
	return b.String()
}

// truncate cuts s to limit runes and appends a truncation marker.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + truncatedSuffix
}
