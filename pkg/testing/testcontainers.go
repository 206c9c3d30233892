// Package testing starts throwaway infrastructure for integration tests.
package testing

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	mongox "github.com/meal-program/production-service/pkg/mongodb"
)

// MongoImage is the server version the integration suites run against
const MongoImage = "mongo:6"

// MongoDB is a single-node replica set container plus a connected client.
// The replica set is needed for the multi-document transactions batch
// writes run in.
type MongoDB struct {
	container *mongodb.MongoDBContainer
	Client    *mongox.Client
	URI       string
}

// StartMongoDB runs the container and connects to database with the same
// client the service uses
func StartMongoDB(ctx context.Context, database string) (*MongoDB, error) {
	container, err := mongodb.Run(ctx, MongoImage, mongodb.WithReplicaSet("rs"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	m := &MongoDB{container: container}
	if err := m.connect(ctx, database); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) connect(ctx context.Context, database string) error {
	raw, err := m.container.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	// the replica set member advertises its in-container hostname
	uri, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid connection string %q: %w", raw, err)
	}
	query := uri.Query()
	query.Set("directConnection", "true")
	uri.RawQuery = query.Encode()
	m.URI = uri.String()

	m.Client, err = mongox.NewClient(ctx, &mongox.Config{
		URI:            m.URI,
		Database:       database,
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    20,
	})
	return err
}

// Close disconnects the client and terminates the container
func (m *MongoDB) Close(ctx context.Context) error {
	if m.Client != nil {
		_ = m.Client.Close(ctx)
	}
	return m.container.Terminate(ctx)
}
