package repository

import (
	"context"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 30
)

// ListListingsParams pages listings by ID descending. StartAfter is an
// exclusive bound: the listing with that ID and everything above it are
// skipped. A nil StartAfter starts from the newest listing.
type ListListingsParams struct {
	StartAfter   *uint64
	Limit        int
	DisputedOnly bool
}

// ClampLimit applies the shared default and cap for list queries.
func (p *ListListingsParams) ClampLimit() {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
}

// ListingRepository owns every Listing record plus the two singleton
// counters: the monotonic ID allocator and the live-listing count.
// Insert and Remove maintain the live count incrementally; NextID never
// reuses an ID, even across deletions.
type ListingRepository interface {
	NextID(ctx context.Context) (uint64, error)
	Insert(ctx context.Context, listing *entity.Listing) error
	GetByID(ctx context.Context, id uint64) (*entity.Listing, error)
	Update(ctx context.Context, listing *entity.Listing) error
	Remove(ctx context.Context, id uint64) error
	Count(ctx context.Context) (uint64, error)
	List(ctx context.Context, params ListListingsParams) ([]entity.Listing, error)
	SearchByTitle(ctx context.Context, title string, limit int) ([]entity.Listing, error)
}

// ListingCache is a read-through cache over point lookups. A miss is
// reported as ErrNotFound; mutations must invalidate the cached ID.
type ListingCache interface {
	Get(ctx context.Context, id uint64) (*entity.Listing, error)
	Set(ctx context.Context, listing *entity.Listing) error
	Delete(ctx context.Context, id uint64) error
}
