package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collUnderlyingTicks = "underlying_ticks"
	collOptionQuotes    = "option_quotes"
	collOptionChains    = "option_chains"
	collWatchlists      = "watchlists"
)

// EnsureIndexes creates every collection's secondary indexes, matching §6's
// "compound secondary indexes, range queries on timestamps" requirement.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{
			collection: collUnderlyingTicks,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "product", Value: 1},
					{Key: "generated_at", Value: -1},
				},
			},
		},
		{
			collection: collOptionQuotes,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "symbol", Value: 1},
					{Key: "generated_at", Value: -1},
				},
			},
		},
		{
			collection: collOptionQuotes,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "product", Value: 1},
					{Key: "generated_at", Value: -1},
				},
			},
		},
		{
			collection: collOptionChains,
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "product", Value: 1},
					{Key: "expiry", Value: 1},
					{Key: "generated_at", Value: -1},
				},
			},
		},
		{
			collection: collWatchlists,
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for _, idx := range indexes {
		if _, err := db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("ensure index on %s: %w", idx.collection, err)
		}
	}
	return nil
}
