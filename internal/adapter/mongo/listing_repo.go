package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aqmarket/escrow-service/internal/app/config"
	"github.com/aqmarket/escrow-service/internal/domain/entity"
	"github.com/aqmarket/escrow-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	listingCollectionName = "listings"
	counterCollectionName = "counters"

	lastListingIDCounter = "last_listing_id"
	listingCountCounter  = "listing_count"
)

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

type listingRepository struct {
	db       *mongo.Database
	listings *mongo.Collection
	counters *mongo.Collection
}

func NewListingRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.ListingRepository {
	database := client.Database(cfg.Database)
	return &listingRepository{
		db:       database,
		listings: database.Collection(listingCollectionName),
		counters: database.Collection(counterCollectionName),
	}
}

// NextID atomically increments the allocator document and returns the
// new value. IDs are never reused, even after deletions.
func (r *listingRepository) NextID(ctx context.Context) (uint64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter counterDoc
	err := r.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": lastListingIDCounter},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate listing ID: %w", err)
	}
	return uint64(counter.Value), nil
}

func (r *listingRepository) Insert(ctx context.Context, listing *entity.Listing) error {
	_, err := r.listings.InsertOne(ctx, listing)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert listing %d: %w", listing.ID, err)
	}

	_, err = r.counters.UpdateOne(
		ctx,
		bson.M{"_id": listingCountCounter},
		bson.M{"$inc": bson.M{"value": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment listing count: %w", err)
	}
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id uint64) (*entity.Listing, error) {
	var listing entity.Listing
	err := r.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing %d: %w", id, err)
	}
	return &listing, nil
}

func (r *listingRepository) Update(ctx context.Context, listing *entity.Listing) error {
	result, err := r.listings.ReplaceOne(ctx, bson.M{"_id": listing.ID}, listing)
	if err != nil {
		return fmt.Errorf("failed to update listing %d: %w", listing.ID, err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *listingRepository) Remove(ctx context.Context, id uint64) error {
	result, err := r.listings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to remove listing %d: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}

	// Guarded decrement: a counter that would go negative means the
	// store invariant is already broken.
	decResult, err := r.counters.UpdateOne(
		ctx,
		bson.M{"_id": listingCountCounter, "value": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"value": -1}},
	)
	if err != nil {
		return fmt.Errorf("failed to decrement listing count: %w", err)
	}
	if decResult.MatchedCount == 0 {
		return repository.ErrCounterUnderflow
	}
	return nil
}

func (r *listingRepository) Count(ctx context.Context) (uint64, error) {
	var counter counterDoc
	err := r.counters.FindOne(ctx, bson.M{"_id": listingCountCounter}).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read listing count: %w", err)
	}
	if counter.Value < 0 {
		return 0, repository.ErrCounterUnderflow
	}
	return uint64(counter.Value), nil
}

func (r *listingRepository) List(ctx context.Context, params repository.ListListingsParams) ([]entity.Listing, error) {
	params.ClampLimit()

	filter := bson.M{}
	if params.StartAfter != nil {
		filter["_id"] = bson.M{"$lt": *params.StartAfter}
	}
	if params.DisputedOnly {
		filter["status"] = entity.StatusDisputed
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(params.Limit))

	cursor, err := r.listings.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []entity.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listed listings: %w", err)
	}
	return listings, nil
}

func (r *listingRepository) SearchByTitle(ctx context.Context, title string, limit int) ([]entity.Listing, error) {
	params := repository.ListListingsParams{Limit: limit}
	params.ClampLimit()

	filter := bson.M{"title": bson.M{"$regex": primitive.Regex{
		Pattern: regexp.QuoteMeta(title),
		Options: "i",
	}}}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(params.Limit))

	cursor, err := r.listings.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings by title: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []entity.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode searched listings: %w", err)
	}
	return listings, nil
}
