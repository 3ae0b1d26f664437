package db

import (
	"context"
	"time"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// SQLDatabase defines the interface for relational operations
// (models, metrics, alert rules and state, weekly ranges, agent nodes, job runs)
type SQLDatabase interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error

	// Model operations
	CreateModel(ctx context.Context, model *models.Model) error
	GetModel(ctx context.Context, id string) (*models.Model, error)
	ListModels(ctx context.Context) ([]*models.Model, error)

	// Model metric operations
	CreateModelMetric(ctx context.Context, metric *models.ModelMetric) error
	GetModelMetric(ctx context.Context, id string) (*models.ModelMetric, error)
	ListModelMetrics(ctx context.Context, modelID string) ([]*models.ModelMetric, error)

	// Alert configuration operations
	CreateAlertConfiguration(ctx context.Context, cfg *models.AlertConfiguration) error
	ListAlertConfigurations(ctx context.Context, modelMetricID string) ([]*models.AlertConfiguration, error)

	// Alert operations
	CreateAlert(ctx context.Context, alert *models.Alert) error
	// CreateAlertIfAbsent atomically creates alert unless an alert for the same
	// model metric exists at or after since. It reports whether alert was created.
	CreateAlertIfAbsent(ctx context.Context, alert *models.Alert, since time.Time) (bool, error)
	ListAlerts(ctx context.Context, filter shared.AlertFilter) ([]*models.Alert, error)

	// Metric range operations
	// UpsertMetricRange sets metrics[label] = value on the row for key, creating it if absent
	UpsertMetricRange(ctx context.Context, key models.MetricRangeKey, label string, value float64) (*models.MetricRange, error)
	GetMetricRange(ctx context.Context, key models.MetricRangeKey) (*models.MetricRange, error)
	ListMetricRanges(ctx context.Context, entityType, entityID string) ([]*models.MetricRange, error)

	// Agent node operations
	CreateAgentNode(ctx context.Context, node *models.AgentNode) error
	ListAgentNodes(ctx context.Context, ids []string) ([]*models.AgentNode, error)

	// Job run operations
	CreateJobRun(ctx context.Context, run *models.JobRun) error
	UpdateJobRun(ctx context.Context, run *models.JobRun) error
	ListJobRuns(ctx context.Context, job string, limit int) ([]*models.JobRun, error)
}
