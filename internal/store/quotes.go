package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/oriys/optionspulse/internal/domain"
)

// InsertQuote persists a single option quote.
func (s *Store) InsertQuote(ctx context.Context, quote *domain.OptionQuote) error {
	_, err := s.db.Collection(collOptionQuotes).InsertOne(ctx, quote)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

// QuoteRange returns quotes for product with generated_at in [from, to],
// used by the IV surface lookback aggregation.
func (s *Store) QuoteRange(ctx context.Context, product string, from, to time.Time) ([]domain.OptionQuote, error) {
	filter := bson.M{
		"product": product,
		"generated_at": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "generated_at", Value: 1}})

	cursor, err := s.db.Collection(collOptionQuotes).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer cursor.Close(ctx)

	quotes := []domain.OptionQuote{}
	if err := cursor.All(ctx, &quotes); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}
	return quotes, nil
}

// QuotesBySymbol returns the quote history for a single contract symbol,
// newest first, bounded by limit.
func (s *Store) QuotesBySymbol(ctx context.Context, symbol string, limit int64) ([]domain.OptionQuote, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "generated_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.db.Collection(collOptionQuotes).Find(ctx, bson.M{"symbol": symbol}, opts)
	if err != nil {
		return nil, fmt.Errorf("query quotes by symbol: %w", err)
	}
	defer cursor.Close(ctx)

	quotes := []domain.OptionQuote{}
	if err := cursor.All(ctx, &quotes); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}
	return quotes, nil
}
