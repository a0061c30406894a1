package oncall

import (
	"testing"
	"time"
)

func validLevel() EscalationLevel {
	return EscalationLevel{
		Targets:                []Target{NewTarget(testResponder("p"), ChannelChat, "")},
		AcknowledgementTimeout: 5 * time.Minute,
	}
}

func TestEscalationPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  EscalationPolicy
		wantErr bool
	}{
		{
			name:   "at least one level with one target and a positive timeout",
			policy: EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{validLevel()}},
		},
		{
			name:    "no levels",
			policy:  EscalationPolicy{Priority: PriorityHigh},
			wantErr: true,
		},
		{
			name: "level with no targets",
			policy: EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{
				{Targets: nil, AcknowledgementTimeout: time.Minute},
			}},
			wantErr: true,
		},
		{
			name: "level with a non-positive timeout",
			policy: EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{
				{Targets: []Target{NewTarget(testResponder("p"), ChannelChat, "")}, AcknowledgementTimeout: 0},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPolicyRegistry_RegisterRejectsInvalidPolicy(t *testing.T) {
	registry := NewPolicyRegistry()
	err := registry.Register(EscalationPolicy{Priority: PriorityLow})
	if err == nil {
		t.Error("expected an error registering a policy with no levels")
	}
	if _, ok := registry.Lookup(PriorityLow); ok {
		t.Error("expected the invalid policy to not be stored")
	}
}

func TestPolicyRegistry_RegisterThenLookup(t *testing.T) {
	registry := NewPolicyRegistry()
	policy := EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{validLevel()}}
	if err := registry.Register(policy); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := registry.Lookup(PriorityHigh)
	if !ok {
		t.Fatal("expected the registered policy to be found")
	}
	if len(got.Levels) != 1 {
		t.Errorf("levels = %d, want 1", len(got.Levels))
	}

	if _, ok := registry.Lookup(PriorityCritical); ok {
		t.Error("expected no policy registered for an untouched priority")
	}
}

func TestPolicyRegistry_RegisterReplacesExisting(t *testing.T) {
	registry := NewPolicyRegistry()
	first := EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{validLevel()}}
	if err := registry.Register(first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	second := EscalationPolicy{Priority: PriorityHigh, Levels: []EscalationLevel{validLevel(), validLevel()}}
	if err := registry.Register(second); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, _ := registry.Lookup(PriorityHigh)
	if len(got.Levels) != 2 {
		t.Errorf("levels = %d, want 2 (replaced, not merged)", len(got.Levels))
	}
}
