package oncall

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loop drives Service.Advance on a fixed interval. It is the production
// equivalent of a human periodically asking "has anything timed out?" —
// the engine itself is otherwise purely reactive to Raise/Acknowledge
// calls.
type Loop struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger

	group singleflight.Group
}

// NewLoop creates a Loop that calls svc.Advance every interval.
func NewLoop(svc *Service, interval time.Duration, logger *slog.Logger) *Loop {
	return &Loop{svc: svc, interval: interval, logger: logger}
}

// Run blocks, ticking until ctx is cancelled. Each tick runs Advance
// synchronously, so ticks that fire while a previous Advance is still
// running (e.g. because the repository is slow) are dropped by the
// ticker rather than piling up. Advance calls also go through
// singleflight, so concurrent Run calls on the same Loop share one
// in-flight Advance.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.tick(ctx, now)
		}
	}
}

func (l *Loop) tick(ctx context.Context, now time.Time) {
	_, err, _ := l.group.Do("advance", func() (any, error) {
		changed, err := l.svc.Advance(ctx, now)
		return changed, err
	})
	if err != nil {
		l.logger.Error("advance tick failed", "error", err)
		return
	}
}
