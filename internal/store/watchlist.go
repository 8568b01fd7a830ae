package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/oriys/optionspulse/internal/domain"
)

// UpsertWatchlist creates or replaces a user's watchlist.
func (s *Store) UpsertWatchlist(ctx context.Context, wl *domain.Watchlist) error {
	filter := bson.M{"user_id": wl.UserID}
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collWatchlists).ReplaceOne(ctx, filter, wl, opts)
	if err != nil {
		return fmt.Errorf("upsert watchlist: %w", err)
	}
	return nil
}

// Watchlist returns a user's watchlist, or mongo.ErrNoDocuments if unset.
func (s *Store) Watchlist(ctx context.Context, userID string) (*domain.Watchlist, error) {
	var wl domain.Watchlist
	err := s.db.Collection(collWatchlists).FindOne(ctx, bson.M{"user_id": userID}).Decode(&wl)
	if err != nil {
		return nil, err
	}
	return &wl, nil
}
