package service

import (
	"context"
	"errors"
	"strings"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/aqmarket/escrow-service/internal/repository"
)

// QueryService serves the read side: single-listing lookups go through
// the cache, list queries always hit the store so pagination stays
// consistent with the live counter.
type QueryService struct {
	repo  repository.ListingRepository
	cache repository.ListingCache
	log   logger.Logger
}

func NewQueryService(repo repository.ListingRepository, cache repository.ListingCache, log logger.Logger) *QueryService {
	return &QueryService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *QueryService) GetListing(ctx context.Context, id uint64) (*entity.Listing, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warnf("Cache lookup failed for listing %d: %v", id, err)
		}
	}

	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, listing); err != nil {
			s.log.Warnf("Failed to cache listing %d: %v", id, err)
		}
	}
	return listing, nil
}

// Count returns the number of listings currently holding a record,
// which is exactly the number of open or escrowed offers.
func (s *QueryService) Count(ctx context.Context) (uint64, error) {
	return s.repo.Count(ctx)
}

// ListListings pages through listings newest-first. startAfter is an
// exclusive bound: passing the last ID of the previous page yields the
// next one.
func (s *QueryService) ListListings(ctx context.Context, startAfter *uint64, limit int) ([]entity.Listing, error) {
	params := repository.ListListingsParams{
		StartAfter: startAfter,
		Limit:      limit,
	}
	params.ClampLimit()
	return s.repo.List(ctx, params)
}

// ListDisputed pages through listings awaiting arbitration, same
// ordering and bounds as ListListings.
func (s *QueryService) ListDisputed(ctx context.Context, startAfter *uint64, limit int) ([]entity.Listing, error) {
	params := repository.ListListingsParams{
		StartAfter:   startAfter,
		Limit:        limit,
		DisputedOnly: true,
	}
	params.ClampLimit()
	return s.repo.List(ctx, params)
}

// SearchByTitle matches the query as a case-insensitive substring of
// listing titles, newest first. An empty query matches everything.
func (s *QueryService) SearchByTitle(ctx context.Context, title string, limit int) ([]entity.Listing, error) {
	params := repository.ListListingsParams{Limit: limit}
	params.ClampLimit()
	return s.repo.SearchByTitle(ctx, strings.TrimSpace(title), params.Limit)
}
