package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AI2HU/gauge/internal/db"
)

// MongoDB implements the NoSQLDatabase interface for MongoDB
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	config   *db.Config
}

const (
	collModelLogs       = "model_logs"
	collModelMetricLogs = "model_metric_logs"
	collAgentLogs       = "agent_logs"
	collAgentNodeLogs   = "agent_node_logs"
)

// New creates a new MongoDB database instance
func New(config *db.Config) (*MongoDB, error) {
	if config == nil || config.URI == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	return &MongoDB{
		config: config,
	}, nil
}

// Connect establishes connection to MongoDB
func (m *MongoDB) Connect(ctx context.Context) error {
	// nested documents decode as maps so log payloads serialize as plain JSON
	clientOptions := options.Client().
		ApplyURI(m.config.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.database = client.Database(m.config.Database)

	if err := m.createIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Disconnect closes the MongoDB connection
func (m *MongoDB) Disconnect(ctx context.Context) error {
	if m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}

// Ping checks the database connection
func (m *MongoDB) Ping(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("not connected to database")
	}
	return m.client.Ping(ctx, nil)
}

// GetDatabase returns the underlying database handle
func (m *MongoDB) GetDatabase() *mongo.Database {
	return m.database
}

// createIndexes creates the indexes behind the job, alert and sampler queries
func (m *MongoDB) createIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collModelLogs: {
			{Keys: bson.D{{Key: "model_id", Value: 1}, {Key: "processed", Value: 1}, {Key: "metric_processed", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "model_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collModelMetricLogs: {
			{Keys: bson.D{{Key: "model_metric_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "model_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collAgentNodeLogs: {
			{Keys: bson.D{{Key: "agent_node_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "agent_log_id", Value: 1}}},
		},
		collAgentLogs: {
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := m.database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

// timeRange builds a created_at range filter
func timeRange(start, end *time.Time) bson.M {
	r := bson.M{}
	if start != nil {
		r["$gte"] = *start
	}
	if end != nil {
		r["$lte"] = *end
	}
	return r
}

func findOptions(limit int, sortDir int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: sortDir}, {Key: "_id", Value: sortDir}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)

	out := []T{}
	for cursor.Next(ctx) {
		var v T
		if err := cursor.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, v)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}
