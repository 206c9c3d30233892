package mongodb

import (
	"context"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/tracing"
)

// InstrumentedClient traces the client-level calls the store makes
type InstrumentedClient struct {
	client *Client
	tracer trace.Tracer
}

// NewInstrumentedClient wraps client. Collection metrics and logs are
// attached per collection through NewInstrumentedCollection.
func NewInstrumentedClient(client *Client) *InstrumentedClient {
	return &InstrumentedClient{client: client, tracer: otel.Tracer("mongodb")}
}

// Database returns the underlying database handle
func (c *InstrumentedClient) Database() *mongo.Database {
	return c.client.Database()
}

// Close disconnects the client
func (c *InstrumentedClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

func (c *InstrumentedClient) traced(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_, err := tracing.TracedOperation(ctx, c.tracer, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, semconv.DBSystemMongoDB, semconv.DBNameKey.String(c.client.Database().Name()))
	return err
}

// HealthCheck pings the primary inside a span
func (c *InstrumentedClient) HealthCheck(ctx context.Context) error {
	return c.traced(ctx, "mongodb.ping", c.client.HealthCheck)
}

// WithTransaction runs fn inside a traced session transaction
func (c *InstrumentedClient) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	return c.traced(ctx, "mongodb.transaction", func(ctx context.Context) error {
		return c.client.WithTransaction(ctx, fn)
	})
}

// InstrumentedCollection wraps a Collection with metrics and tracing
type InstrumentedCollection struct {
	collection *mongo.Collection
	name       string
	database   string
	metrics    *metrics.Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewInstrumentedCollection wraps an existing collection handle
func NewInstrumentedCollection(collection *mongo.Collection, m *metrics.Metrics, logger *logging.Logger) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: collection,
		name:       collection.Name(),
		database:   collection.Database().Name(),
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("mongodb"),
	}
}

func (c *InstrumentedCollection) observe(ctx context.Context, operation string, fn func(ctx context.Context) (int64, error)) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DatabaseSpanAttributes(c.database, operation, c.name)...),
	)
	defer span.End()

	rows, err := fn(ctx)
	duration := time.Since(start)
	success := err == nil || err == mongo.ErrNoDocuments

	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation(c.name, operation, success, duration)
	}
	if c.logger != nil {
		c.logger.DatabaseQuery(ctx, c.name, operation, duration, success, rows)
	}

	if !success {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int64("db.rows_affected", rows))
	}
	return err
}

// InsertOne inserts a single document
func (c *InstrumentedCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	var result *mongo.InsertOneResult
	err := c.observe(ctx, "insertOne", func(ctx context.Context) (int64, error) {
		var err error
		result, err = c.collection.InsertOne(ctx, document, opts...)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	return result, err
}

// InsertMany inserts multiple documents
func (c *InstrumentedCollection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	var result *mongo.InsertManyResult
	err := c.observe(ctx, "insertMany", func(ctx context.Context) (int64, error) {
		var err error
		result, err = c.collection.InsertMany(ctx, documents, opts...)
		if err != nil {
			return 0, err
		}
		return int64(len(result.InsertedIDs)), nil
	})
	return result, err
}

// FindOne finds a single document and decodes it into out
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOneOptions) error {
	return c.observe(ctx, "findOne", func(ctx context.Context) (int64, error) {
		if err := c.collection.FindOne(ctx, filter, opts...).Decode(out); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

// FindAll runs a query and decodes every match into out, which must be a
// pointer to a slice
func (c *InstrumentedCollection) FindAll(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOptions) error {
	return c.observe(ctx, "find", func(ctx context.Context) (int64, error) {
		cursor, err := c.collection.Find(ctx, filter, opts...)
		if err != nil {
			return 0, err
		}
		defer cursor.Close(ctx)
		if err := cursor.All(ctx, out); err != nil {
			return 0, err
		}
		return int64(reflect.ValueOf(out).Elem().Len()), nil
	})
}

// UpdateOne updates a single document
func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	var result *mongo.UpdateResult
	err := c.observe(ctx, "updateOne", func(ctx context.Context) (int64, error) {
		var err error
		result, err = c.collection.UpdateOne(ctx, filter, update, opts...)
		if err != nil {
			return 0, err
		}
		return result.ModifiedCount + result.UpsertedCount, nil
	})
	return result, err
}

// ReplaceOne replaces a single document
func (c *InstrumentedCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	var result *mongo.UpdateResult
	err := c.observe(ctx, "replaceOne", func(ctx context.Context) (int64, error) {
		var err error
		result, err = c.collection.ReplaceOne(ctx, filter, replacement, opts...)
		if err != nil {
			return 0, err
		}
		return result.ModifiedCount, nil
	})
	return result, err
}

// FindOneAndUpdate applies update and decodes the resulting document into out
func (c *InstrumentedCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, out interface{}, opts ...*options.FindOneAndUpdateOptions) error {
	return c.observe(ctx, "findOneAndUpdate", func(ctx context.Context) (int64, error) {
		if err := c.collection.FindOneAndUpdate(ctx, filter, update, opts...).Decode(out); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

// CountDocuments counts matching documents
func (c *InstrumentedCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	var count int64
	err := c.observe(ctx, "countDocuments", func(ctx context.Context) (int64, error) {
		var err error
		count, err = c.collection.CountDocuments(ctx, filter, opts...)
		return 0, err
	})
	return count, err
}

// EnsureIndexes creates the given indexes
func (c *InstrumentedCollection) EnsureIndexes(ctx context.Context, indexes []mongo.IndexModel) error {
	return c.observe(ctx, "createIndexes", func(ctx context.Context) (int64, error) {
		names, err := c.collection.Indexes().CreateMany(ctx, indexes)
		return int64(len(names)), err
	})
}
