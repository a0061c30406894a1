// Package notify defines the notification fan-out abstraction the oncall
// engine dispatches assignments through, plus a handful of concrete
// sinks: console, a channel-filtering composite, and a Slack chat
// adapter. The voice channel's adapter lives in pkg/voice, since it needs
// the voice-script generator.
package notify

import (
	"context"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Notifier is the single-method delivery capability the engine dispatches
// assignments through. Implementations must be best-effort: notify must
// never block the engine on an external system's availability, and must
// swallow or log its own failures rather than propagate them as dispatch
// failures. A page that never arrives is recovered by escalation on the
// assignment's deadline, not by retry-until-delivered semantics here.
type Notifier interface {
	Notify(ctx context.Context, alert oncall.Alert, assignment oncall.Assignment)
}
