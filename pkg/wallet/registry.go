package wallet

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps wallet kinds to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Kind]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[Kind]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Each kind may be registered once.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := a.Kind()
	if _, exists := r.adapters[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, kind)
	}
	r.adapters[kind] = a
	return nil
}

// Get returns the adapter for kind.
func (r *Registry) Get(kind Kind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, kind)
	}
	return a, nil
}

// Kinds lists registered kinds in a stable order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	kinds := r.Kinds()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, r.adapters[k])
	}
	return out
}
