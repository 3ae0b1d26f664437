package db

import (
	"context"
	"time"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// NoSQLDatabase defines the interface for log operations
// (inference logs, metric logs, agent runs)
type NoSQLDatabase interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error

	// Model log operations
	CreateModelLog(ctx context.Context, log *models.ModelLog) error
	// ListEligibleModelLogs returns processed logs not yet included in a metric, oldest first
	ListEligibleModelLogs(ctx context.Context, modelID string, limit int) ([]models.ModelLog, error)
	// MarkMetricProcessed flips metric_processed on the given logs and returns how many changed
	MarkMetricProcessed(ctx context.Context, ids []string) (int, error)
	CountModelLogs(ctx context.Context, filter shared.LogFilter) (int, error)
	// ListModelLogs returns logs newest first
	ListModelLogs(ctx context.Context, filter shared.LogFilter) ([]models.ModelLog, error)

	// Model metric log operations
	CreateModelMetricLog(ctx context.Context, log *models.ModelMetricLog) error
	// ListModelMetricLogs returns non-deleted metric logs newest first
	ListModelMetricLogs(ctx context.Context, filter shared.MetricLogFilter) ([]models.ModelMetricLog, error)
	// AverageMetricValue averages non-deleted metric values in [start, end]
	AverageMetricValue(ctx context.Context, modelMetricID string, start, end time.Time) (float64, int, error)

	// Agent log operations
	CreateAgentLog(ctx context.Context, log *models.AgentLog) error
	CreateAgentNodeLog(ctx context.Context, log *models.AgentNodeLog) error
	CountNodeLogs(ctx context.Context, filter shared.NodeLogFilter) (int, error)
	// ListNodeLogs returns node logs newest first
	ListNodeLogs(ctx context.Context, filter shared.NodeLogFilter) ([]models.AgentNodeLog, error)
	// CountCompleteRuns counts runs with at least one log for every requested node
	CountCompleteRuns(ctx context.Context, filter shared.RunFilter) (int, error)
	// ListCompleteRunIDs returns complete runs ordered by their latest node log, newest first
	ListCompleteRunIDs(ctx context.Context, filter shared.RunFilter) ([]string, error)
	// ListRunNodeLogs returns the logs of the given runs restricted to the filter's nodes and window
	ListRunNodeLogs(ctx context.Context, runIDs []string, filter shared.RunFilter) ([]models.AgentNodeLog, error)
}
