// Package store is the persistent store (P): a MongoDB-backed repository
// for underlying ticks, option quotes, enriched option chains, and user
// watchlists. It favors document writes with compound secondary indexes and
// range queries on timestamps over the bus's ephemeral cache.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/oriys/optionspulse/internal/config"
)

// Store wraps a mongo client and the module's working database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB using cfg and runs a ping within pingTimeout.
func New(ctx context.Context, cfg config.StoreConfig, pingTimeout time.Duration) (*Store, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	dbName := cfg.Database
	if dbName == "" {
		dbName = "optionspulse"
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

// DB exposes the underlying database for callers that need a raw collection
// handle.
func (s *Store) DB() *mongo.Database { return s.db }

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Migrate ensures every collection's indexes exist. Safe to call on every
// process start: CreateOne is a no-op against an already-present index.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureIndexes(ctx, s.db)
}
