package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// CreateModelLog stores an inference log
func (m *MongoDB) CreateModelLog(ctx context.Context, log *models.ModelLog) error {
	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	if _, err := m.database.Collection(collModelLogs).InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to create model log: %w", err)
	}
	return nil
}

// ListEligibleModelLogs returns processed logs not yet used by a metric, oldest first
func (m *MongoDB) ListEligibleModelLogs(ctx context.Context, modelID string, limit int) ([]models.ModelLog, error) {
	filter := bson.M{
		"model_id":         modelID,
		"processed":        true,
		"metric_processed": false,
	}

	cursor, err := m.database.Collection(collModelLogs).Find(ctx, filter, findOptions(limit, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible model logs: %w", err)
	}
	return decodeAll[models.ModelLog](ctx, cursor)
}

// MarkMetricProcessed flips metric_processed on the given logs
func (m *MongoDB) MarkMetricProcessed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}, "metric_processed": false}
	update := bson.M{"$set": bson.M{"metric_processed": true}}

	result, err := m.database.Collection(collModelLogs).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mark model logs: %w", err)
	}
	return int(result.ModifiedCount), nil
}

func logFilter(filter shared.LogFilter) bson.M {
	f := bson.M{"model_id": filter.ModelID}
	if r := timeRange(filter.StartTime, filter.EndTime); len(r) > 0 {
		f["created_at"] = r
	}
	return f
}

// CountModelLogs counts the logs of a model in a window
func (m *MongoDB) CountModelLogs(ctx context.Context, filter shared.LogFilter) (int, error) {
	n, err := m.database.Collection(collModelLogs).CountDocuments(ctx, logFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count model logs: %w", err)
	}
	return int(n), nil
}

// ListModelLogs returns the logs of a model in a window, newest first
func (m *MongoDB) ListModelLogs(ctx context.Context, filter shared.LogFilter) ([]models.ModelLog, error) {
	cursor, err := m.database.Collection(collModelLogs).Find(ctx, logFilter(filter), findOptions(filter.Limit, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to list model logs: %w", err)
	}
	return decodeAll[models.ModelLog](ctx, cursor)
}

// CreateModelMetricLog stores a computed metric value
func (m *MongoDB) CreateModelMetricLog(ctx context.Context, log *models.ModelMetricLog) error {
	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	if _, err := m.database.Collection(collModelMetricLogs).InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to create model metric log: %w", err)
	}
	return nil
}

func metricLogFilter(modelMetricID string, start, end *time.Time) bson.M {
	f := bson.M{
		"model_metric_id": modelMetricID,
		"deleted_at":      nil,
	}
	if r := timeRange(start, end); len(r) > 0 {
		f["created_at"] = r
	}
	return f
}

// ListModelMetricLogs returns non-deleted metric logs, newest first
func (m *MongoDB) ListModelMetricLogs(ctx context.Context, filter shared.MetricLogFilter) ([]models.ModelMetricLog, error) {
	f := metricLogFilter(filter.ModelMetricID, filter.StartTime, filter.EndTime)
	opts := findOptions(filter.Limit, -1).SetProjection(bson.M{"logs": 0})

	cursor, err := m.database.Collection(collModelMetricLogs).Find(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list model metric logs: %w", err)
	}
	return decodeAll[models.ModelMetricLog](ctx, cursor)
}

// AverageMetricValue averages non-deleted metric values in [start, end]
func (m *MongoDB) AverageMetricValue(ctx context.Context, modelMetricID string, start, end time.Time) (float64, int, error) {
	pipeline := []bson.M{
		{"$match": metricLogFilter(modelMetricID, &start, &end)},
		{
			"$group": bson.M{
				"_id":   nil,
				"avg":   bson.M{"$avg": "$value"},
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := m.database.Collection(collModelMetricLogs).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate metric average: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, 0, fmt.Errorf("failed to decode metric average: %w", err)
		}
	}
	return result.Avg, result.Count, cursor.Err()
}

// CreateAgentLog stores an agent run
func (m *MongoDB) CreateAgentLog(ctx context.Context, log *models.AgentLog) error {
	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	if _, err := m.database.Collection(collAgentLogs).InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to create agent log: %w", err)
	}
	return nil
}

// CreateAgentNodeLog stores one node execution of a run
func (m *MongoDB) CreateAgentNodeLog(ctx context.Context, log *models.AgentNodeLog) error {
	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	if _, err := m.database.Collection(collAgentNodeLogs).InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to create agent node log: %w", err)
	}
	return nil
}

func nodeFilter(nodeIDs []string, start, end *time.Time) bson.M {
	f := bson.M{"agent_node_id": bson.M{"$in": nodeIDs}}
	if r := timeRange(start, end); len(r) > 0 {
		f["created_at"] = r
	}
	return f
}

// CountNodeLogs counts node logs of the given nodes in a window
func (m *MongoDB) CountNodeLogs(ctx context.Context, filter shared.NodeLogFilter) (int, error) {
	n, err := m.database.Collection(collAgentNodeLogs).CountDocuments(ctx, nodeFilter(filter.NodeIDs, filter.StartTime, filter.EndTime))
	if err != nil {
		return 0, fmt.Errorf("failed to count node logs: %w", err)
	}
	return int(n), nil
}

// ListNodeLogs returns node logs of the given nodes in a window, newest first
func (m *MongoDB) ListNodeLogs(ctx context.Context, filter shared.NodeLogFilter) ([]models.AgentNodeLog, error) {
	f := nodeFilter(filter.NodeIDs, filter.StartTime, filter.EndTime)
	cursor, err := m.database.Collection(collAgentNodeLogs).Find(ctx, f, findOptions(filter.Limit, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to list node logs: %w", err)
	}
	return decodeAll[models.AgentNodeLog](ctx, cursor)
}

// completeRunsPipeline groups node logs by run and keeps runs that touched every requested node
func completeRunsPipeline(filter shared.RunFilter) []bson.M {
	distinct := make(map[string]struct{}, len(filter.NodeIDs))
	for _, id := range filter.NodeIDs {
		distinct[id] = struct{}{}
	}

	return []bson.M{
		{"$match": nodeFilter(filter.NodeIDs, filter.StartTime, filter.EndTime)},
		{
			"$group": bson.M{
				"_id":    "$agent_log_id",
				"nodes":  bson.M{"$addToSet": "$agent_node_id"},
				"latest": bson.M{"$max": "$created_at"},
			},
		},
		{"$match": bson.M{"$expr": bson.M{"$eq": bson.A{bson.M{"$size": "$nodes"}, len(distinct)}}}},
	}
}

// CountCompleteRuns counts runs with at least one log for every requested node
func (m *MongoDB) CountCompleteRuns(ctx context.Context, filter shared.RunFilter) (int, error) {
	if len(filter.NodeIDs) == 0 {
		return 0, nil
	}

	pipeline := append(completeRunsPipeline(filter), bson.M{"$count": "total"})
	cursor, err := m.database.Collection(collAgentNodeLogs).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count complete runs: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total int `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode complete run count: %w", err)
		}
	}
	return result.Total, cursor.Err()
}

// ListCompleteRunIDs returns complete runs ordered by their latest node log, newest first
func (m *MongoDB) ListCompleteRunIDs(ctx context.Context, filter shared.RunFilter) ([]string, error) {
	if len(filter.NodeIDs) == 0 {
		return []string{}, nil
	}

	pipeline := append(completeRunsPipeline(filter), bson.M{"$sort": bson.D{{Key: "latest", Value: -1}, {Key: "_id", Value: -1}}})
	if filter.Limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": filter.Limit})
	}

	cursor, err := m.database.Collection(collAgentNodeLogs).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to list complete runs: %w", err)
	}

	type runDoc struct {
		ID string `bson:"_id"`
	}
	docs, err := decodeAll[runDoc](ctx, cursor)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// ListRunNodeLogs returns the logs of the given runs restricted to the filter's nodes and window
func (m *MongoDB) ListRunNodeLogs(ctx context.Context, runIDs []string, runFilter shared.RunFilter) ([]models.AgentNodeLog, error) {
	if len(runIDs) == 0 {
		return []models.AgentNodeLog{}, nil
	}

	filter := nodeFilter(runFilter.NodeIDs, runFilter.StartTime, runFilter.EndTime)
	filter["agent_log_id"] = bson.M{"$in": runIDs}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.database.Collection(collAgentNodeLogs).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list run node logs: %w", err)
	}
	return decodeAll[models.AgentNodeLog](ctx, cursor)
}
