package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// DefaultMinMatch is the lowest match percentage that is posted.
const DefaultMinMatch = 40

// Block Kit limits a section's text to 3000 characters.
const maxSectionChars = 3000

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts match notifications and run announcements to a Slack
// channel via an Incoming Webhook.
type SlackNotifier struct {
	webhookURL string
	minMatch   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts matches at or above minMatch.
func NewSlackNotifier(webhookURL string, minMatch int, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		minMatch:   minMatch,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify posts message when the assessment clears the threshold. Delivery
// failures are logged, not returned.
func (s *SlackNotifier) Notify(ctx context.Context, a model.Assessment, message string) error {
	if a.Percent() < s.minMatch {
		s.logger.Info("skipping slack message below threshold",
			"match_percent", a.Percent(), "min_match", s.minMatch)
		return nil
	}

	if err := s.post(ctx, buildMatchPayload(a, message)); err != nil {
		s.logger.Error("slack notification failed", "match_percent", a.Percent(), "error", err)
		return nil
	}
	s.logger.Info("slack message sent", "match_percent", a.Percent())
	return nil
}

// Announce posts a plain-text lifecycle message.
func (s *SlackNotifier) Announce(ctx context.Context, text string) error {
	if err := s.post(ctx, slackPayload{Text: text}); err != nil {
		return fmt.Errorf("slack announce: %w", err)
	}
	return nil
}

// post sends payload, retrying once on 429 after the Retry-After delay.
func (s *SlackNotifier) post(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.send(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)

		select {
		case <-ctx.Done():
			return fmt.Errorf("slack retry: %w", ctx.Err())
		case <-time.After(retryAfter):
		}

		status, _, err = s.send(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return &model.HTTPError{StatusCode: status, Err: fmt.Errorf("slack returned %d on retry", status)}
		}
		return nil
	}

	if status != http.StatusOK {
		return &model.HTTPError{StatusCode: status, Err: fmt.Errorf("slack returned %d", status)}
	}
	return nil
}

func (s *SlackNotifier) send(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, model.ParseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// buildMatchPayload carries the full message as the notification text and a
// Block Kit rendering for clients that show blocks.
func buildMatchPayload(a model.Assessment, message string) slackPayload {
	text := truncate(message, MaxMessageChars)

	return slackPayload{
		Text: text,
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("🎯 %d%% match", a.Percent())},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: "*Chance:*\n" + chanceLabel(a.ChanceCategory)},
					{Type: "mrkdwn", Text: "*Suitable:*\n" + yesNo(a.Suitable)},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: truncate(message, maxSectionChars-len([]rune(truncatedSuffix)))},
			},
			{Type: "divider"},
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// SendTestMessage sends a sample match and announcement through n to verify
// the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	pct := 100
	a := model.Assessment{
		Suitable:           true,
		ResumeImprovements: []string{"Nothing to change, this is a test"},
		MatchPercent:       &pct,
		ChanceCategory:     model.ChanceHigh,
		Summary:            "Integration verified.",
	}
	rec := model.QueueRecord{
		Title:   "Test Notification",
		Company: "jobmatch",
		URL:     "https://www.ycombinator.com/jobs",
	}
	if err := n.Announce(ctx, "jobmatch test announcement"); err != nil {
		return err
	}
	return n.Notify(ctx, a, FormatMatch(rec, a))
}
