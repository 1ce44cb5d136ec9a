package infra

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/warrensiro/chat-server/config"
)

func NewMongo(ctx context.Context, cfg *config.Config) (*mongo.Database, func(), error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("infra: mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, nil, fmt.Errorf("infra: mongo ping: %w", err)
	}

	disconnect := func() {
		_ = client.Disconnect(context.Background())
	}

	return client.Database(cfg.MongoDB), disconnect, nil
}
