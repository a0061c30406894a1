package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Slack is a channel-specific Notifier for oncall.ChannelChat targets. It
// posts a message naming the responder, the alert's priority and
// message, and the level at which they were paged. Callers should wrap
// it in a ChannelFilter for oncall.ChannelChat before adding it to a
// Composite.
type Slack struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack creates a Slack notifier. If botToken is empty, the notifier
// is a noop (logging only) — a missing bot token degrades gracefully
// instead of failing startup.
func NewSlack(botToken, channel string, logger *slog.Logger) *Slack {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Slack{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this notifier has a usable client.
func (s *Slack) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

// Notify posts a page notification to the configured Slack channel. It
// never returns an error: per the Notifier contract, delivery failures
// are logged and swallowed so they cannot block escalation.
func (s *Slack) Notify(ctx context.Context, alert oncall.Alert, assignment oncall.Assignment) {
	if !s.IsEnabled() {
		s.logger.Debug("slack notifier disabled, skipping page",
			"alert_id", alert.ID,
			"responder", assignment.Target.Responder.Name,
		)
		return
	}

	text := fmt.Sprintf("[%s] %s — paging %s (level %d): %s",
		alert.Priority, alert.ID, assignment.Target.Responder.Name, assignment.LevelIndex, alert.Message)

	_, _, err := s.client.PostMessageContext(ctx, s.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		s.logger.Warn("posting page to slack",
			"alert_id", alert.ID,
			"responder", assignment.Target.Responder.Name,
			"error", err,
		)
		return
	}

	s.logger.Info("posted page to slack",
		"alert_id", alert.ID,
		"responder", assignment.Target.Responder.Name,
		"channel", s.channel,
	)
}
