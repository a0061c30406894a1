// Package eventbus publishes on-call lifecycle events (escalations,
// acknowledgements, exhaustion) to Redis pub/sub so external dashboards
// can subscribe without polling the REST API.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nightpage/oncall/pkg/oncall"
)

// EventType names the kind of lifecycle event published.
type EventType string

const (
	EventRaised       EventType = "alert.raised"
	EventEscalated    EventType = "alert.escalated"
	EventAcknowledged EventType = "alert.acknowledged"
	EventExhausted    EventType = "alert.exhausted"
)

// Event is the envelope published on the channel.
type Event struct {
	Type     EventType       `json:"type"`
	AlertID  uuid.UUID       `json:"alert_id"`
	Priority oncall.Priority `json:"priority"`
	Status   oncall.Status   `json:"status"`
	Level    int             `json:"level"`
	At       time.Time       `json:"at"`
}

// Bus publishes Events to a single Redis channel. A nil *Bus is valid and
// publishes nothing — callers need not branch on whether Redis is
// configured.
type Bus struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

// New creates a Bus publishing to channel over rdb.
func New(rdb *redis.Client, channel string, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, channel: channel, logger: logger}
}

// Publish serializes and publishes ev. Failures are logged, not returned:
// a dashboard missing one event must never affect alert delivery.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil || b.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshaling event", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("publishing event", "channel", b.channel, "type", ev.Type, "error", fmt.Errorf("redis publish: %w", err))
	}
}

// PublishAlertEvent builds and publishes an Event from an alert's current
// state. It satisfies oncall.EventSink, letting a Service publish without
// importing this package.
func (b *Bus) PublishAlertEvent(ctx context.Context, kind string, alert oncall.Alert, at time.Time) {
	b.Publish(ctx, Event{
		Type:     EventType(kind),
		AlertID:  alert.ID,
		Priority: alert.Priority,
		Status:   alert.Status,
		Level:    alert.CurrentLevelIndex,
		At:       at,
	})
}
