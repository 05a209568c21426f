package suppress

import (
	"context"
	"sync"
)

// Registry holds process-wide suppression that outlives any single context,
// such as test fixtures loading rows without remote calls.
type Registry struct {
	mu         sync.RWMutex
	persistent map[string]bool
}

var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{persistent: map[string]bool{}}
}

// SetPersistent suppresses recordType in every context until reset.
func (r *Registry) SetPersistent(recordType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistent[normalizeType(recordType)] = true
}

func (r *Registry) ResetPersistent(recordType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.persistent, normalizeType(recordType))
}

func (r *Registry) Persistent(recordType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.persistent[normalizeType(recordType)]
}

// Suppressed resolves the effective flag for one operation. The first
// defined value wins: the record instance override, the context value for
// recordType, the context value for All, then the persistent settings.
func (r *Registry) Suppressed(ctx context.Context, recordType string, instanceValue bool, instanceDefined bool) bool {
	if instanceDefined {
		return instanceValue
	}
	if value, defined := Lookup(ctx, recordType); defined {
		return value
	}
	if value, defined := Lookup(ctx, All); defined {
		return value
	}
	if r == nil {
		return false
	}
	return r.Persistent(recordType) || r.Persistent(All)
}
