package oncall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testResponder(name string) Responder {
	return Responder{ID: uuid.New(), Name: name, Contact: name + "@example.com"}
}

// highPolicy builds a three 5-minute-level policy: primary, then
// secondary, then manager.
func highPolicy(primary, secondary, manager Responder) EscalationPolicy {
	return EscalationPolicy{
		Priority: PriorityCritical,
		Levels: []EscalationLevel{
			{Targets: []Target{NewTarget(primary, ChannelVoice, "")}, AcknowledgementTimeout: 5 * time.Minute},
			{Targets: []Target{NewTarget(secondary, ChannelVoice, "")}, AcknowledgementTimeout: 5 * time.Minute},
			{Targets: []Target{NewTarget(manager, ChannelChat, "")}, AcknowledgementTimeout: 5 * time.Minute},
		},
	}
}

// recordingNotifier counts deliveries without doing anything else.
type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) Notify(_ context.Context, _ Alert, _ Assignment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func newTestService(t *testing.T, policy EscalationPolicy) *Service {
	t.Helper()
	registry := NewPolicyRegistry()
	if err := registry.Register(policy); err != nil {
		t.Fatalf("registering policy: %v", err)
	}
	return NewService(NewMemoryRepository(), registry, &recordingNotifier{})
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRaise_DispatchesLevelZero(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))

	alert, err := svc.Raise(context.Background(), "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if alert.Status != StatusPending {
		t.Errorf("status = %v, want pending", alert.Status)
	}
	if len(alert.Assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(alert.Assignments))
	}
	if alert.Assignments[0].Target.Responder.ID != primary.ID {
		t.Error("level 0 assignment did not target primary")
	}
}

func TestRaise_RejectsBlankMessage(t *testing.T) {
	svc := newTestService(t, highPolicy(testResponder("p"), testResponder("s"), testResponder("m")))
	for _, message := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Raise(context.Background(), message, PriorityCritical, t0); err == nil {
			t.Errorf("expected error for blank message %q", message)
		}
	}
}

func TestRaise_RejectsUnknownPriority(t *testing.T) {
	svc := newTestService(t, highPolicy(testResponder("p"), testResponder("s"), testResponder("m")))
	if _, err := svc.Raise(context.Background(), "db down", PriorityLow, t0); err == nil {
		t.Error("expected error for unregistered priority")
	}
}

func TestAcknowledgeByResponder_AtLevelZero(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}

	outcome, err := svc.AcknowledgeByResponder(ctx, alert.ID, primary.ID, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("AcknowledgeByResponder: %v", err)
	}
	if outcome.Result != AckAcknowledged {
		t.Fatalf("result = %v, want acknowledged", outcome.Result)
	}
	if outcome.Responder == nil || outcome.Responder.ID != primary.ID {
		t.Error("outcome responder is not primary")
	}

	got, ok, err := svc.Get(ctx, alert.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusAcknowledged {
		t.Errorf("status = %v, want acknowledged", got.Status)
	}
	if len(got.Assignments) != 1 {
		t.Errorf("assignments = %d, want 1", len(got.Assignments))
	}
}

func TestAcknowledgeByToken_AfterTwoEscalations(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}

	if _, err := svc.Advance(ctx, t0.Add(6*time.Minute)); err != nil {
		t.Fatalf("Advance #1: %v", err)
	}
	if _, err := svc.Advance(ctx, t0.Add(12*time.Minute)); err != nil {
		t.Fatalf("Advance #2: %v", err)
	}

	mid, ok, err := svc.Get(ctx, alert.ID)
	if err != nil || !ok {
		t.Fatalf("Get after escalations: ok=%v err=%v", ok, err)
	}
	if mid.CurrentLevelIndex != 2 {
		t.Fatalf("current level = %d, want 2", mid.CurrentLevelIndex)
	}
	secondAsn, found := mid.FindAssignmentByResponder(secondary.ID)
	if !found {
		t.Fatalf("no assignment found for secondary")
	}

	outcome, err := svc.AcknowledgeByToken(ctx, alert.ID, secondAsn.Token, t0.Add(13*time.Minute))
	if err != nil {
		t.Fatalf("AcknowledgeByToken: %v", err)
	}
	if outcome.Result != AckAcknowledged {
		t.Fatalf("result = %v, want acknowledged", outcome.Result)
	}
	if outcome.Responder == nil || outcome.Responder.ID != secondary.ID {
		t.Error("outcome responder is not secondary")
	}

	final, ok, err := svc.Get(ctx, alert.ID)
	if err != nil || !ok {
		t.Fatalf("final Get: ok=%v err=%v", ok, err)
	}
	if final.Status != StatusAcknowledged {
		t.Errorf("status = %v, want acknowledged", final.Status)
	}
	if len(final.Assignments) != 3 {
		t.Errorf("assignments = %d, want 3", len(final.Assignments))
	}
	if final.CurrentLevelIndex != 2 {
		t.Errorf("current level = %d, want 2", final.CurrentLevelIndex)
	}
}

func TestAdvance_ExhaustsAfterAllLevelsTimeOut(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}

	for _, at := range []time.Duration{6 * time.Minute, 12 * time.Minute, 18 * time.Minute} {
		if _, err := svc.Advance(ctx, t0.Add(at)); err != nil {
			t.Fatalf("Advance(%v): %v", at, err)
		}
	}

	got, ok, err := svc.Get(ctx, alert.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusExhausted {
		t.Errorf("status = %v, want exhausted", got.Status)
	}
	if len(got.Assignments) != 3 {
		t.Errorf("assignments = %d, want 3", len(got.Assignments))
	}
	if got.AcknowledgedBy != nil {
		t.Error("expected no responder recorded on exhaustion")
	}
}

func TestAcknowledgeByToken_ReplayReturnsOriginalOutcome(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	token := alert.Assignments[0].Token

	first, err := svc.AcknowledgeByToken(ctx, alert.ID, token, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("first AcknowledgeByToken: %v", err)
	}
	if first.Result != AckAcknowledged {
		t.Fatalf("first result = %v, want acknowledged", first.Result)
	}

	second, err := svc.AcknowledgeByToken(ctx, alert.ID, token, t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second AcknowledgeByToken: %v", err)
	}
	if second.Result != AckAlreadyAcknowledged {
		t.Fatalf("second result = %v, want already_acknowledged", second.Result)
	}
	if second.Responder == nil || second.Responder.ID != primary.ID {
		t.Error("replay did not attribute the original responder")
	}
	if second.At == nil || !second.At.Equal(*first.At) {
		t.Error("replay timestamp does not match the original acknowledgement")
	}
}

// TestAcknowledgeByToken_ConcurrentDifferentAssignments races two
// concurrent AcknowledgeByToken calls for different assignments on the
// same pending alert; exactly one must win.
func TestAcknowledgeByToken_ConcurrentDifferentAssignments(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if _, err := svc.Advance(ctx, t0.Add(6*time.Minute)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, _, err := svc.Get(ctx, alert.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	primaryAsn, _ := got.FindAssignmentByResponder(primary.ID)
	secondaryAsn, _ := got.FindAssignmentByResponder(secondary.ID)

	var wg sync.WaitGroup
	results := make([]AckOutcome, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = svc.AcknowledgeByToken(ctx, alert.ID, primaryAsn.Token, t0.Add(7*time.Minute))
	}()
	go func() {
		defer wg.Done()
		results[1], _ = svc.AcknowledgeByToken(ctx, alert.ID, secondaryAsn.Token, t0.Add(7*time.Minute))
	}()
	wg.Wait()

	acked, already := 0, 0
	var winnerResponder *Responder
	for _, r := range results {
		switch r.Result {
		case AckAcknowledged:
			acked++
			winnerResponder = r.Responder
		case AckAlreadyAcknowledged:
			already++
		}
	}
	if acked != 1 || already != 1 {
		t.Fatalf("expected exactly one acknowledged and one already_acknowledged, got acked=%d already=%d", acked, already)
	}
	for _, r := range results {
		if r.Result == AckAlreadyAcknowledged && (r.Responder == nil || winnerResponder == nil || r.Responder.ID != winnerResponder.ID) {
			t.Error("loser's responder does not match winner's")
		}
	}
}

func TestAdvance_Idempotent_SameTick(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	if _, err := svc.Raise(ctx, "db down", PriorityCritical, t0); err != nil {
		t.Fatalf("Raise: %v", err)
	}

	at := t0.Add(6 * time.Minute)
	if _, err := svc.Advance(ctx, at); err != nil {
		t.Fatalf("Advance #1: %v", err)
	}
	alerts, err := svc.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	after1 := alerts[0].CurrentLevelIndex
	assignments1 := len(alerts[0].Assignments)

	if _, err := svc.Advance(ctx, at); err != nil {
		t.Fatalf("Advance #2 (same tick): %v", err)
	}
	alerts, err = svc.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if alerts[0].CurrentLevelIndex != after1 {
		t.Errorf("level changed on repeated tick: %d -> %d", after1, alerts[0].CurrentLevelIndex)
	}
	if len(alerts[0].Assignments) != assignments1 {
		t.Errorf("assignment count changed on repeated tick: %d -> %d", assignments1, len(alerts[0].Assignments))
	}
}

func TestAcknowledgeByResponder_AlertNotFound(t *testing.T) {
	svc := newTestService(t, highPolicy(testResponder("p"), testResponder("s"), testResponder("m")))
	outcome, err := svc.AcknowledgeByResponder(context.Background(), uuid.New(), uuid.New(), t0)
	if err != nil {
		t.Fatalf("AcknowledgeByResponder: %v", err)
	}
	if outcome.Result != AckAlertNotFound {
		t.Errorf("result = %v, want alert_not_found", outcome.Result)
	}
}

func TestAcknowledgeByToken_TokenNotFound(t *testing.T) {
	primary, secondary, manager := testResponder("primary"), testResponder("secondary"), testResponder("manager")
	svc := newTestService(t, highPolicy(primary, secondary, manager))
	ctx := context.Background()

	alert, err := svc.Raise(ctx, "db down", PriorityCritical, t0)
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}

	outcome, err := svc.AcknowledgeByToken(ctx, alert.ID, uuid.New(), t0)
	if err != nil {
		t.Fatalf("AcknowledgeByToken: %v", err)
	}
	if outcome.Result != AckTokenNotFound {
		t.Errorf("result = %v, want token_not_found", outcome.Result)
	}
}
