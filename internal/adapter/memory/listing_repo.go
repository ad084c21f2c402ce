// Package memory provides a mutex-guarded in-memory ListingRepository,
// used by tests and single-node deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/repository"
)

type ListingRepository struct {
	mu sync.RWMutex

	listings  map[uint64]entity.Listing
	lastID    uint64
	liveCount uint64
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		listings: make(map[uint64]entity.Listing),
	}
}

func (r *ListingRepository) NextID(_ context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	return r.lastID, nil
}

func (r *ListingRepository) Insert(_ context.Context, listing *entity.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listings[listing.ID]; exists {
		return repository.ErrAlreadyExists
	}
	r.listings[listing.ID] = *listing
	r.liveCount++
	return nil
}

func (r *ListingRepository) GetByID(_ context.Context, id uint64) (*entity.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &listing, nil
}

func (r *ListingRepository) Update(_ context.Context, listing *entity.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[listing.ID]; !ok {
		return repository.ErrNotFound
	}
	r.listings[listing.ID] = *listing
	return nil
}

func (r *ListingRepository) Remove(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return repository.ErrNotFound
	}
	if r.liveCount == 0 {
		return repository.ErrCounterUnderflow
	}
	delete(r.listings, id)
	r.liveCount--
	return nil
}

func (r *ListingRepository) Count(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.liveCount, nil
}

func (r *ListingRepository) List(_ context.Context, params repository.ListListingsParams) ([]entity.Listing, error) {
	params.ClampLimit()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.listings))
	for id := range r.listings {
		if params.StartAfter != nil && id >= *params.StartAfter {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	results := make([]entity.Listing, 0, params.Limit)
	for _, id := range ids {
		listing := r.listings[id]
		if params.DisputedOnly && !listing.ArbitrationRequested() {
			continue
		}
		results = append(results, listing)
		if len(results) == params.Limit {
			break
		}
	}
	return results, nil
}

func (r *ListingRepository) SearchByTitle(_ context.Context, title string, limit int) ([]entity.Listing, error) {
	params := repository.ListListingsParams{Limit: limit}
	params.ClampLimit()

	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(title)
	ids := make([]uint64, 0, len(r.listings))
	for id, listing := range r.listings {
		if strings.Contains(strings.ToLower(listing.Title), needle) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	results := make([]entity.Listing, 0, params.Limit)
	for _, id := range ids {
		results = append(results, r.listings[id])
		if len(results) == params.Limit {
			break
		}
	}
	return results, nil
}
