package oncall

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository is the store-by-identifier abstraction the Service depends
// on. Implementations must provide thread-safe Get/Put/List: the Service
// relies on that guarantee to hold its own per-alert granularity lock
// around the read-inspect-mutate-persist sequence (see Service.alertLock).
type Repository interface {
	Put(ctx context.Context, alert Alert) error
	Get(ctx context.Context, id uuid.UUID) (Alert, bool, error)
	List(ctx context.Context, status *Status) ([]Alert, error)
}

// MemoryRepository is the default in-memory Repository. It is the
// canonical implementation; pkg/oncall/pgstore provides a pluggable
// Postgres-backed alternative behind the same interface.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]Alert
}

// NewMemoryRepository creates an empty in-memory Repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{alerts: make(map[uuid.UUID]Alert)}
}

// Put inserts or replaces the stored alert. A persistent backend snapshots
// the alert's policy on insert so that future escalation does not depend
// on the policy registry's current configuration.
func (r *MemoryRepository) Put(_ context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = alert.Clone()
	return nil
}

// Get returns the stored alert, if any.
func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (Alert, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, false, nil
	}
	return a.Clone(), true, nil
}

// List returns every stored alert sorted by creation time ascending,
// optionally filtered by status.
func (r *MemoryRepository) List(_ context.Context, status *Status) ([]Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ErrNotFound is returned by Repository implementations that distinguish
// lookup misses from transport errors. Neither MemoryRepository nor
// pgstore returns it: both report misses via the bool return instead.
var ErrNotFound = fmt.Errorf("oncall: alert not found")
