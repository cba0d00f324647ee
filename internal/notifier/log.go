package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobmatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes matches and announcements to the given logger.
type LogNotifier struct {
	minMatch int
	logger   *slog.Logger
}

// NewLogNotifier returns a notifier that logs matches at or above minMatch.
func NewLogNotifier(minMatch int, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{minMatch: minMatch, logger: logger}
}

// Notify logs the assessment and message. Returns nil (logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, a model.Assessment, message string) error {
	if a.Percent() < n.minMatch {
		n.logger.Debug("match below threshold", "match_percent", a.Percent(), "min_match", n.minMatch)
		return nil
	}
	n.logger.Info("job match",
		"match_percent", a.Percent(),
		"chance", a.ChanceCategory,
		"suitable", a.Suitable,
		"summary", a.Summary,
		"message", message,
	)
	return nil
}

// Announce logs a lifecycle message.
func (n *LogNotifier) Announce(_ context.Context, text string) error {
	n.logger.Info(text)
	return nil
}
