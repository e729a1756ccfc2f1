package feed

import (
	"fmt"
	"sort"
	"sync"
)

// Registry tracks all registered feeds by identifier. Feeds are fully
// independent; the registry lock only guards the map, never a feed's own
// state.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]*State
}

// NewRegistry builds an empty feed registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]*State)}
}

// Register creates state for a new feed.
func (r *Registry) Register(id string, cfg Config) (*State, error) {
	state, err := NewState(cfg)
	if err != nil {
		return nil, fmt.Errorf("register feed %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.feeds[id]; exists {
		return nil, fmt.Errorf("register feed %s: already registered", id)
	}
	r.feeds[id] = state
	return state, nil
}

// Remove drops a feed and its history. Reports whether the feed existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.feeds[id]; !exists {
		return false
	}
	delete(r.feeds, id)
	return true
}

// Get looks up a feed's state.
func (r *Registry) Get(id string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.feeds[id]
	return state, ok
}

// Snapshot reads a feed's published state. Unknown feeds yield zero-valued
// defaults rather than an error.
func (r *Registry) Snapshot(id string) Snapshot {
	state, ok := r.Get(id)
	if !ok {
		return Snapshot{}
	}
	return state.Snapshot()
}

// IDs lists the registered feed identifiers in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
