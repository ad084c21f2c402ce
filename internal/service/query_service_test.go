package service

import (
	"context"
	"testing"

	"github.com/aqmarket/escrow-service/internal/adapter/memory"
	"github.com/aqmarket/escrow-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedQueryListings(t *testing.T, svc *EscrowService, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.CreateListing(context.Background(), testSeller, createInput())
		require.NoError(t, err)
	}
}

func TestQueryService_GetListing_CacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewListingRepository()
	escrow := newTestService(repo, nil)
	seedQueryListings(t, escrow, 1)

	cache := new(MockListingCache)
	query := NewQueryService(repo, cache, NewNoOpLogger())

	cache.On("Get", mock.Anything, uint64(1)).Return(nil, repository.ErrNotFound).Once()
	cache.On("Set", mock.Anything, mock.Anything).Return(nil).Once()

	listing, err := query.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), listing.ID)

	cache.On("Get", mock.Anything, uint64(1)).Return(listing, nil).Once()

	again, err := query.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, listing, again)

	cache.AssertExpectations(t)
}

func TestQueryService_GetListing_NotFound(t *testing.T) {
	repo := memory.NewListingRepository()
	query := NewQueryService(repo, nil, NewNoOpLogger())

	_, err := query.GetListing(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQueryService_CountAndList(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewListingRepository()
	escrow := newTestService(repo, nil)
	query := NewQueryService(repo, nil, NewNoOpLogger())
	seedQueryListings(t, escrow, 12)

	count, err := query.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), count)

	// Default page size, newest first.
	page, err := query.ListListings(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, page, repository.DefaultListLimit)
	assert.Equal(t, uint64(12), page[0].ID)

	lastSeen := page[len(page)-1].ID
	rest, err := query.ListListings(ctx, &lastSeen, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestQueryService_ListDisputed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewListingRepository()
	escrow := newTestService(repo, nil)
	query := NewQueryService(repo, nil, NewNoOpLogger())
	seedQueryListings(t, escrow, 3)

	_, err := escrow.Purchase(ctx, testBuyer, 2, exactPayment())
	require.NoError(t, err)
	_, err = escrow.SignShipped(ctx, testSeller, 2)
	require.NoError(t, err)
	_, err = escrow.RequestArbitration(ctx, testBuyer, 2)
	require.NoError(t, err)

	disputed, err := query.ListDisputed(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, disputed, 1)
	assert.Equal(t, uint64(2), disputed[0].ID)
}

func TestQueryService_SearchByTitle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewListingRepository()
	escrow := newTestService(repo, nil)
	query := NewQueryService(repo, nil, NewNoOpLogger())
	seedQueryListings(t, escrow, 2)

	results, err := query.SearchByTitle(ctx, "VINTAGE", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = query.SearchByTitle(ctx, "nothing-matches", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
