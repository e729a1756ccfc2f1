// Package provider tracks the set of reporters authorized per feed. It is the
// in-process stand-in for the allow-listing collaborator: an ordered set
// keyed by address, replacing any fixed signer table.
package provider

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// UnauthorizedError is surfaced when a report arrives from an address that is
// not allow-listed for the feed.
type UnauthorizedError struct {
	FeedID   string
	Provider common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("provider: %s is not authorized for feed %s", e.Provider.Hex(), e.FeedID)
}

// Registry holds ordered provider sets per feed.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string][]common.Address
}

// NewRegistry builds an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string][]common.Address)}
}

// Add authorizes a provider for a feed, preserving insertion order. Adding an
// already-present provider is a no-op.
func (r *Registry) Add(feedID string, addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.feeds[feedID] {
		if existing == addr {
			return
		}
	}
	r.feeds[feedID] = append(r.feeds[feedID], addr)
}

// Remove revokes a provider's authorization. Reports whether it was present.
func (r *Registry) Remove(feedID string, addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	providers := r.feeds[feedID]
	for i, existing := range providers {
		if existing == addr {
			r.feeds[feedID] = append(providers[:i], providers[i+1:]...)
			return true
		}
	}
	return false
}

// IsAuthorized reports whether the provider may report for the feed.
func (r *Registry) IsAuthorized(feedID string, addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.feeds[feedID] {
		if existing == addr {
			return true
		}
	}
	return false
}

// Authorize checks a whole batch of reporters, returning an
// UnauthorizedError for the first unknown address.
func (r *Registry) Authorize(feedID string, addrs []common.Address) error {
	for _, addr := range addrs {
		if !r.IsAuthorized(feedID, addr) {
			return &UnauthorizedError{FeedID: feedID, Provider: addr}
		}
	}
	return nil
}

// List returns the feed's providers in authorization order.
func (r *Registry) List(feedID string) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common.Address(nil), r.feeds[feedID]...)
}
