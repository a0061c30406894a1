package oncall

import (
	"fmt"
	"sync"
)

// PolicyRegistry holds the immutable escalation policies keyed by
// priority. Policies are logically shared by reference across alerts; the
// Service snapshots a policy into the alert at raise time (see
// Alert.Policy) so replaying escalation never depends on the registry's
// current contents.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[Priority]EscalationPolicy
}

// NewPolicyRegistry creates an empty registry.
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{policies: make(map[Priority]EscalationPolicy)}
}

// Register validates and stores a policy for the given priority,
// replacing any existing policy for that priority.
func (r *PolicyRegistry) Register(policy EscalationPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.Priority] = policy
	return nil
}

// Lookup returns the policy registered for the given priority.
func (r *PolicyRegistry) Lookup(priority Priority) (EscalationPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[priority]
	return p, ok
}

// ErrNoPolicy is returned by Service.Raise when no policy is registered
// for the alert's priority.
var ErrNoPolicy = fmt.Errorf("oncall: no escalation policy registered for priority")
