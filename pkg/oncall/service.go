package oncall

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nightpage/oncall/internal/telemetry"
)

// Notifier is the narrow interface the Service depends on to deliver
// assignments. It is defined here, not in pkg/notify, so that pkg/notify
// (which needs the Alert/Assignment types) can depend on this package
// without creating an import cycle; pkg/notify's Console, Composite, and
// Slack types all satisfy it structurally.
type Notifier interface {
	Notify(ctx context.Context, alert Alert, assignment Assignment)
}

// Service is the on-call engine: the state machine that routes a raised
// alert through an escalation policy, dispatches pages, and accepts
// acknowledgements that stop escalation.
//
// Concurrency: Service guards each alert's read-inspect-mutate-persist
// sequence with a lock keyed by alert ID, rather than one engine-wide
// mutex, so unrelated alerts never contend with each other. Notification
// delivery always happens after the per-alert lock is released, so a
// slow notifier cannot stall other callers.
type Service struct {
	repo     Repository
	policies *PolicyRegistry
	notifier Notifier
	events   EventSink

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// EventSink is the narrow interface the Service uses to publish lifecycle
// events for external dashboards. Defined here, not in internal/eventbus,
// for the same reason as Notifier: eventbus needs the Alert type, so
// Service cannot depend on eventbus without an import cycle.
type EventSink interface {
	PublishAlertEvent(ctx context.Context, kind string, alert Alert, at time.Time)
}

// NewService creates a Service. notifier may be a *notify.Composite
// wrapping any number of channel-specific sinks.
func NewService(repo Repository, policies *PolicyRegistry, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		policies: policies,
		notifier: notifier,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetEventSink attaches an EventSink for lifecycle event publication. It
// is optional; a Service with no sink attached simply skips publication.
func (s *Service) SetEventSink(events EventSink) {
	s.events = events
}

// publish forwards to the attached EventSink, if any.
func (s *Service) publish(ctx context.Context, kind string, alert Alert, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.PublishAlertEvent(ctx, kind, alert, at)
}

// alertLock returns the mutex for a given alert ID, creating it on first
// use. Locks are never removed: alerts live for the process lifetime and
// the lock set is bounded by the number of distinct alerts raised.
func (s *Service) alertLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// dispatchSet is the set of (assignment, notify) pairs computed while
// holding an alert's lock, delivered only after the lock is released.
type dispatchSet struct {
	alert       Alert
	assignments []Assignment
}

// Raise creates a new pending alert against the escalation policy
// registered for priority, dispatches level 0, and returns the alert.
func (s *Service) Raise(ctx context.Context, message string, priority Priority, createdAt time.Time) (Alert, error) {
	if strings.TrimSpace(message) == "" {
		return Alert{}, fmt.Errorf("oncall: alert message must not be blank")
	}
	policy, ok := s.policies.Lookup(priority)
	if !ok {
		return Alert{}, fmt.Errorf("%w: %q", ErrNoPolicy, priority)
	}

	alert := Alert{
		ID:                uuid.New(),
		Message:           message,
		Priority:          priority,
		CreatedAt:         createdAt,
		Policy:            policy,
		Status:            StatusPending,
		CurrentLevelIndex: 0,
	}

	assignments := dispatchLevel(&alert, 0, createdAt)
	if err := s.repo.Put(ctx, alert); err != nil {
		return Alert{}, fmt.Errorf("persisting raised alert: %w", err)
	}
	telemetry.AlertsRaisedTotal.WithLabelValues(string(priority)).Inc()

	s.publish(ctx, "alert.raised", alert, createdAt)
	s.deliver(ctx, alert, assignments)
	return alert.Clone(), nil
}

// dispatchLevel appends one assignment per target in policy.Levels[level]
// to alert.Assignments, stamping each with a deadline and a fresh
// acknowledgement token, and returns the newly created assignments. It
// mutates alert in place; callers must be holding the alert's lock (or,
// for Raise, own the only reference there is).
func dispatchLevel(alert *Alert, level int, dispatchedAt time.Time) []Assignment {
	lvl := alert.Policy.Levels[level]
	created := make([]Assignment, 0, len(lvl.Targets))
	for _, target := range lvl.Targets {
		asn := Assignment{
			ID:           uuid.New(),
			Target:       target,
			LevelIndex:   level,
			DispatchedAt: dispatchedAt,
			Deadline:     dispatchedAt.Add(lvl.AcknowledgementTimeout),
			Token:        uuid.New(),
		}
		alert.Assignments = append(alert.Assignments, asn)
		created = append(created, asn)
	}
	return created
}

// deliver notifies for every assignment in the dispatch set. It must be
// called without any alert lock held: notifiers can block on a slow
// provider, and holding the lock across that call would stall every
// other caller waiting on the same alert.
func (s *Service) deliver(ctx context.Context, alert Alert, assignments []Assignment) {
	if s.notifier == nil {
		return
	}
	for _, asn := range assignments {
		s.notifier.Notify(ctx, alert, asn)
		telemetry.NotificationsTotal.WithLabelValues(string(asn.Target.Channel)).Inc()
	}
}

// List returns every alert sorted by creation time ascending, optionally
// filtered by status.
func (s *Service) List(ctx context.Context, status *Status) ([]Alert, error) {
	return s.repo.List(ctx, status)
}

// Get returns a single alert by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Alert, bool, error) {
	return s.repo.Get(ctx, id)
}

// AcknowledgeByResponder resolves the assignment belonging to responderID
// on the given alert and completes acknowledgement through it. This is
// the "internal dashboard" acknowledgement path.
func (s *Service) AcknowledgeByResponder(ctx context.Context, alertID, responderID uuid.UUID, at time.Time) (AckOutcome, error) {
	return s.acknowledge(ctx, alertID, at, func(a Alert) (Assignment, bool) {
		return a.FindAssignmentByResponder(responderID)
	}, AckAssignmentNotFound)
}

// AcknowledgeByToken resolves the assignment carrying the given
// single-use token and completes acknowledgement through it. This is the
// voice-callback acknowledgement path.
func (s *Service) AcknowledgeByToken(ctx context.Context, alertID, token uuid.UUID, at time.Time) (AckOutcome, error) {
	return s.acknowledge(ctx, alertID, at, func(a Alert) (Assignment, bool) {
		return a.FindAssignmentByToken(token)
	}, AckTokenNotFound)
}

// acknowledge is the shared resolve-then-complete path for both
// acknowledgement entry points: AcknowledgeByResponder and
// AcknowledgeByToken differ only in how the assignment is located, so
// the locking and completion logic lives here once.
func (s *Service) acknowledge(ctx context.Context, alertID uuid.UUID, at time.Time, resolve func(Alert) (Assignment, bool), missErr AckResult) (AckOutcome, error) {
	// Answer unknown IDs before creating a lock for them, so the lock set
	// only grows with alerts that exist.
	if _, ok, err := s.repo.Get(ctx, alertID); err != nil {
		return AckOutcome{}, fmt.Errorf("loading alert: %w", err)
	} else if !ok {
		return AckOutcome{Result: AckAlertNotFound}, nil
	}

	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, ok, err := s.repo.Get(ctx, alertID)
	if err != nil {
		return AckOutcome{}, fmt.Errorf("loading alert: %w", err)
	}
	if !ok {
		return AckOutcome{Result: AckAlertNotFound}, nil
	}

	assignment, found := resolve(alert)
	if !found {
		return AckOutcome{Result: missErr}, nil
	}

	outcome, updated := completeAcknowledgement(alert, assignment, at)
	if updated != nil {
		if err := s.repo.Put(ctx, *updated); err != nil {
			return AckOutcome{}, fmt.Errorf("persisting acknowledgement: %w", err)
		}
		s.publish(ctx, "alert.acknowledged", *updated, at)
	}
	telemetry.AlertsAcknowledgedTotal.WithLabelValues(string(outcome.Result)).Inc()
	return outcome, nil
}

// completeAcknowledgement decides the outcome of an acknowledgement
// attempt once the target assignment has been located: an alert already
// acknowledged (by this or any other assignment) reports the original
// acknowledger idempotently, and only a genuinely new acknowledgement
// mutates state. It returns the outcome and, if a transition actually
// occurred, the updated alert to persist (nil otherwise).
func completeAcknowledgement(alert Alert, assignment Assignment, at time.Time) (AckOutcome, *Alert) {
	if alert.Status == StatusAcknowledged {
		return AckOutcome{
			Result:    AckAlreadyAcknowledged,
			Responder: alert.AcknowledgedBy,
			At:        alert.AcknowledgedAt,
		}, nil
	}

	if assignment.Acknowledged() {
		responder := assignment.Target.Responder
		return AckOutcome{
			Result:    AckAlreadyAcknowledged,
			Responder: &responder,
			At:        assignment.AcknowledgedAt,
		}, nil
	}

	for i := range alert.Assignments {
		if alert.Assignments[i].ID == assignment.ID {
			t := at
			alert.Assignments[i].AcknowledgedAt = &t
			break
		}
	}
	responder := assignment.Target.Responder
	ackAt := at
	alert.Status = StatusAcknowledged
	alert.AcknowledgedBy = &responder
	alert.AcknowledgedAt = &ackAt

	return AckOutcome{
		Result:    AckAcknowledged,
		Responder: &responder,
		At:        &ackAt,
	}, &alert
}

// Advance evaluates every pending alert against now and performs at most
// one level transition (or exhaustion) per alert whose current level has
// blown through its deadline unacknowledged. It returns every alert that
// changed state on this tick.
func (s *Service) Advance(ctx context.Context, now time.Time) ([]Alert, error) {
	pending := StatusPending
	alerts, err := s.repo.List(ctx, &pending)
	if err != nil {
		return nil, fmt.Errorf("listing pending alerts: %w", err)
	}

	var changed []Alert
	var toDeliver []dispatchSet
	for _, alert := range alerts {
		updated, dispatched, didChange := s.advanceOne(ctx, alert.ID, now)
		if !didChange {
			continue
		}
		changed = append(changed, updated)
		if updated.Status == StatusExhausted {
			s.publish(ctx, "alert.exhausted", updated, now)
		} else {
			s.publish(ctx, "alert.escalated", updated, now)
		}
		if len(dispatched) > 0 {
			toDeliver = append(toDeliver, dispatchSet{alert: updated, assignments: dispatched})
		}
	}

	for _, ds := range toDeliver {
		s.deliver(ctx, ds.alert, ds.assignments)
	}
	return changed, nil
}

// advanceOne re-reads and evaluates a single alert under its lock,
// performing at most one transition. Returns the updated alert (if any
// transition happened), the assignments newly dispatched by that
// transition (empty on exhaustion), and whether anything changed.
func (s *Service) advanceOne(ctx context.Context, alertID uuid.UUID, now time.Time) (Alert, []Assignment, bool) {
	lock := s.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, ok, err := s.repo.Get(ctx, alertID)
	if err != nil || !ok || alert.Status != StatusPending {
		return Alert{}, nil, false
	}

	atLevel := alert.AssignmentsAtLevel(alert.CurrentLevelIndex)
	for _, asn := range atLevel {
		if asn.Acknowledged() {
			// Defensive: the acknowledgement path already transitioned
			// the alert. Advance never infers an acknowledgement itself.
			return Alert{}, nil, false
		}
	}
	if len(atLevel) == 0 {
		return Alert{}, nil, false
	}

	levelDeadline := atLevel[0].Deadline
	for _, asn := range atLevel[1:] {
		if asn.Deadline.After(levelDeadline) {
			levelDeadline = asn.Deadline
		}
	}
	if now.Before(levelDeadline) {
		return Alert{}, nil, false
	}

	nextIndex := alert.CurrentLevelIndex + 1
	if nextIndex >= len(alert.Policy.Levels) {
		alert.Status = StatusExhausted
		if err := s.repo.Put(ctx, alert); err != nil {
			return Alert{}, nil, false
		}
		telemetry.AlertsExhaustedTotal.Inc()
		return alert.Clone(), nil, true
	}

	alert.CurrentLevelIndex = nextIndex
	dispatched := dispatchLevel(&alert, nextIndex, now)
	if err := s.repo.Put(ctx, alert); err != nil {
		return Alert{}, nil, false
	}
	telemetry.EscalationsTotal.WithLabelValues(strconv.Itoa(nextIndex)).Inc()
	return alert.Clone(), dispatched, true
}
