package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoConfig struct {
	URI                    string
	Database               string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:                    "mongodb://localhost:27017",
		Database:               "taskflow_db",
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
	}
}

// MongoClient owns the process-wide MongoDB connection. It is opened once at
// startup and closed once at shutdown.
type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectMongo builds the client. The driver connects lazily, so an
// unreachable cluster surfaces on the first Ping or query, not here.
func ConnectMongo(ctx context.Context, config *MongoConfig) (*MongoClient, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}
	if config.Database == "" {
		return nil, errors.New("mongo database name is required")
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetServerSelectionTimeout(config.ServerSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	return &MongoClient{
		Client: client,
		DB:     client.Database(config.Database),
	}, nil
}

func (m *MongoClient) Collection(name string) *mongo.Collection {
	return m.DB.Collection(name)
}

func (m *MongoClient) Health(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return errors.New("mongo client not initialized")
	}
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *MongoClient) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
