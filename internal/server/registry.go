// registry.go - In-memory index of live auctions.
//
// Listing and lookup are collaborator conveniences for the REST surface; the
// engine itself needs no index beyond the per-auction record.

package server

import (
	"fmt"
	"sync"

	"sealedbid/internal/auction"
	"sealedbid/internal/auctionerrors"
)

// Registry holds auctions by id, preserving creation order for listing.
type Registry struct {
	mu       sync.RWMutex
	auctions map[string]*auction.Auction
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{auctions: make(map[string]*auction.Auction)}
}

func (r *Registry) Add(a *auction.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.ID()] = a
	r.order = append(r.order, a.ID())
}

func (r *Registry) Get(id string) (*auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, fmt.Errorf("registry: %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

func (r *Registry) List() []*auction.Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*auction.Auction, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.auctions[id])
	}
	return out
}
