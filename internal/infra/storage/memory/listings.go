package memory

import (
	"context"
	"sync"

	domainlistings "rentme-reservations/internal/domain/listings"
)

// ListingRepository keeps the listing catalog snapshot in memory.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{items: make(map[domainlistings.ListingID]domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrListingNotFound
	}
	return &listing, nil
}

// Save validates and stores a copy of listing.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if err := listing.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = *listing
	return nil
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
