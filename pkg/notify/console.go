package notify

import (
	"context"
	"log/slog"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Console is a Notifier that logs assignments rather than delivering
// them anywhere. It is the default sink for email/SMS/push targets in
// this repository and a reasonable stand-in for any channel when no
// richer adapter is configured — channel-specific adapters (Slack,
// voice) should be composed alongside it, not instead of it.
type Console struct {
	logger *slog.Logger
}

// NewConsole creates a Console notifier.
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

// Notify logs the assignment at info level.
func (c *Console) Notify(_ context.Context, alert oncall.Alert, assignment oncall.Assignment) {
	c.logger.Info("paging responder",
		"alert_id", alert.ID,
		"responder", assignment.Target.Responder.Name,
		"channel", assignment.Target.Channel,
		"address", assignment.Target.Address,
		"level", assignment.LevelIndex,
		"deadline", assignment.Deadline,
	)
}
