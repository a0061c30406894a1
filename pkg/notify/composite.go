package notify

import (
	"context"

	"github.com/nightpage/oncall/pkg/oncall"
)

// Composite fans an assignment out to every delegate Notifier, ignoring
// individual failures so that one failed sink never masks another. The
// delegate list is owned by the Composite.
type Composite struct {
	delegates []Notifier
}

// NewComposite creates a Composite over the given delegates, in dispatch
// order.
func NewComposite(delegates ...Notifier) *Composite {
	return &Composite{delegates: delegates}
}

// Notify delivers to every delegate in turn. Delegates are expected to
// already be best-effort (see Notifier); Composite adds no additional
// error handling because there is nothing to do with a delegate failure
// except what the delegate itself already did (log and move on).
func (c *Composite) Notify(ctx context.Context, alert oncall.Alert, assignment oncall.Assignment) {
	for _, d := range c.delegates {
		d.Notify(ctx, alert, assignment)
	}
}

// ChannelFilter wraps a Notifier so it only receives assignments whose
// target channel matches. Channel-specific adapters (Slack, voice) are
// expected to be wrapped this way before being added to a Composite,
// rather than each reimplementing the channel check.
type ChannelFilter struct {
	channel  oncall.Channel
	delegate Notifier
}

// NewChannelFilter creates a ChannelFilter that only forwards
// assignments targeting the given channel to delegate.
func NewChannelFilter(channel oncall.Channel, delegate Notifier) *ChannelFilter {
	return &ChannelFilter{channel: channel, delegate: delegate}
}

// Notify forwards to the delegate iff the assignment's target channel
// matches, otherwise it is a silent no-op.
func (f *ChannelFilter) Notify(ctx context.Context, alert oncall.Alert, assignment oncall.Assignment) {
	if assignment.Target.Channel != f.channel {
		return
	}
	f.delegate.Notify(ctx, alert, assignment)
}
