package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Client wraps the driver client together with the database the stores use.
type Client struct {
	*mongo.Client
	DB *mongo.Database
}

// New connects and pings. The caller owns Close.
func New(ctx context.Context, uri, database string) (*Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	return &Client{Client: client, DB: client.Database(database)}, nil
}

// Health checks if the connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.Disconnect(ctx)
}
