package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	listingCacheKeyPrefix = "listing:"
)

type listingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewListingCache(client *redis.Client, ttl time.Duration) repository.ListingCache {
	return &listingCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *listingCache) key(id uint64) string {
	return listingCacheKeyPrefix + strconv.FormatUint(id, 10)
}

func (c *listingCache) Get(ctx context.Context, id uint64) (*entity.Listing, error) {
	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing %d from redis: %w", id, err)
	}

	var listing entity.Listing
	if err := json.Unmarshal(val, &listing); err != nil {
		// A corrupt cache entry must not shadow the store.
		_ = c.Delete(ctx, id)
		return nil, fmt.Errorf("failed to unmarshal cached listing %d: %w", id, err)
	}
	return &listing, nil
}

func (c *listingCache) Set(ctx context.Context, listing *entity.Listing) error {
	if listing == nil {
		return errors.New("cannot cache a nil listing")
	}

	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing %d for cache: %w", listing.ID, err)
	}

	if err := c.client.Set(ctx, c.key(listing.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache listing %d: %w", listing.ID, err)
	}
	return nil
}

func (c *listingCache) Delete(ctx context.Context, id uint64) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached listing %d: %w", id, err)
	}
	return nil
}
