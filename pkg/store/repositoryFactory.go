package store

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/spanner"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Creator hooks let tests substitute backends without real connections.
type (
	PostgresCreator func(dsn string) (*sql.DB, error)
	MongoCreator    func(ctx context.Context, uri string) (*mongo.Client, error)
	SpannerCreator  func(ctx context.Context, uri string) (*spanner.Client, error)
)

var OpenPostgres PostgresCreator = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

var OpenMongo MongoCreator = func(ctx context.Context, uri string) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

var OpenSpanner SpannerCreator = func(ctx context.Context, uri string) (*spanner.Client, error) {
	return spanner.NewClient(ctx, uri)
}

// NewRepository builds the configured backend. maxRetries is the
// delivery retry cap: leads with more prior attempts are not offered to
// workers again.
func NewRepository(ctx context.Context, cfg config.DbSettings, maxRetries int, owners []string) (Repository, error) {
	switch cfg.Type {
	case "postgres":
		db, err := OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepository(db, maxRetries, owners), nil
	case "mongo":
		client, err := OpenMongo(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		return NewMongoRepository(client, cfg.Database, maxRetries, owners), nil
	case "spanner":
		client, err := OpenSpanner(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		return NewSpannerRepository(client, maxRetries, owners), nil
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}
