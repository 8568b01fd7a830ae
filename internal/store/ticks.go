package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/oriys/optionspulse/internal/domain"
)

// InsertTick persists a single underlying tick.
func (s *Store) InsertTick(ctx context.Context, tick *domain.UnderlyingTick) error {
	_, err := s.db.Collection(collUnderlyingTicks).InsertOne(ctx, tick)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// TickRange returns ticks for product with generated_at in [from, to],
// ordered oldest first, feeding the OHLC window aggregator.
func (s *Store) TickRange(ctx context.Context, product string, from, to time.Time) ([]domain.UnderlyingTick, error) {
	filter := bson.M{
		"product": product,
		"generated_at": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: 1}})

	cursor, err := s.db.Collection(collUnderlyingTicks).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer cursor.Close(ctx)

	ticks := []domain.UnderlyingTick{}
	if err := cursor.All(ctx, &ticks); err != nil {
		return nil, fmt.Errorf("decode ticks: %w", err)
	}
	return ticks, nil
}

// LatestTick returns the most recent tick for product, or
// mongo.ErrNoDocuments if none exists yet.
func (s *Store) LatestTick(ctx context.Context, product string) (*domain.UnderlyingTick, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}})
	var tick domain.UnderlyingTick
	err := s.db.Collection(collUnderlyingTicks).FindOne(ctx, bson.M{"product": product}, opts).Decode(&tick)
	if err != nil {
		return nil, err
	}
	return &tick, nil
}
