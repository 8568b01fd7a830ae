package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/oriys/optionspulse/internal/domain"
)

// InsertChain persists one enriched option chain snapshot.
func (s *Store) InsertChain(ctx context.Context, chain *domain.EnrichedChain) error {
	_, err := s.db.Collection(collOptionChains).InsertOne(ctx, chain)
	if err != nil {
		return fmt.Errorf("insert chain: %w", err)
	}
	return nil
}

// LatestChain returns the most recently enriched chain for product+expiry.
func (s *Store) LatestChain(ctx context.Context, product string, expiry time.Time) (*domain.EnrichedChain, error) {
	filter := bson.M{"product": product, "expiry": expiry}
	opts := options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}})

	var chain domain.EnrichedChain
	err := s.db.Collection(collOptionChains).FindOne(ctx, filter, opts).Decode(&chain)
	if err != nil {
		return nil, err
	}
	return &chain, nil
}

// ChainRange returns enriched chain snapshots for product with generated_at
// in [from, to], oldest first.
func (s *Store) ChainRange(ctx context.Context, product string, from, to time.Time) ([]domain.EnrichedChain, error) {
	filter := bson.M{
		"product": product,
		"generated_at": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: 1}})

	cursor, err := s.db.Collection(collOptionChains).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer cursor.Close(ctx)

	chains := []domain.EnrichedChain{}
	if err := cursor.All(ctx, &chains); err != nil {
		return nil, fmt.Errorf("decode chains: %w", err)
	}
	return chains, nil
}
