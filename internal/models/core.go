package models

import (
	"fmt"
	"time"
)

// Core domain models

// ProblemType is the category of prediction task a model performs
type ProblemType string

const (
	ProblemBinaryClass    ProblemType = "binary_class"
	ProblemMultiClass     ProblemType = "multi_class"
	ProblemClassification ProblemType = "classification"
	ProblemMultiLabel     ProblemType = "multi_label"
	ProblemTextGeneration ProblemType = "text_generation"
	ProblemMapping        ProblemType = "mapping"
	ProblemGeneration     ProblemType = "generation"
	ProblemDataExtraction ProblemType = "data_extraction"
)

// Model represents an evaluated AI endpoint
type Model struct {
	ID          string                 `json:"id" db:"id"`
	CompanyID   string                 `json:"company_id" db:"company_id"`
	Name        string                 `json:"name" db:"name"`
	ProblemType ProblemType            `json:"problem_type" db:"problem_type"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" db:"-"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// ClassMapping returns the optional label -> 0/1 mapping declared in the model parameters.
// Values that are not numeric or boolean are ignored.
func (m *Model) ClassMapping() map[string]int {
	mapping := make(map[string]int)
	raw, ok := m.Parameters["mapping"].(map[string]interface{})
	if !ok {
		return mapping
	}

	for label, v := range raw {
		switch value := v.(type) {
		case float64:
			mapping[label] = int(value)
		case int:
			mapping[label] = value
		case bool:
			if value {
				mapping[label] = 1
			} else {
				mapping[label] = 0
			}
		}
	}
	return mapping
}

// ModelLog represents one inference record
type ModelLog struct {
	ID              string                 `json:"id" bson:"_id"`
	ModelID         string                 `json:"model_id" bson:"model_id"`
	Input           string                 `json:"input" bson:"input"`
	Output          string                 `json:"output" bson:"output"`
	Actual          map[string]interface{} `json:"actual,omitempty" bson:"actual,omitempty"`
	Processed       bool                   `json:"processed" bson:"processed"`
	MetricProcessed bool                   `json:"metric_processed" bson:"metric_processed"`
	CreatedAt       time.Time              `json:"created_at" bson:"created_at"`
}

// EligibleForMetrics reports whether the log can be included in a metric batch
func (l *ModelLog) EligibleForMetrics() bool {
	return l.Processed && !l.MetricProcessed
}

// ModelMetric is a named, configured metric for a model
type ModelMetric struct {
	ID         string                 `json:"id" db:"id"`
	ModelID    string                 `json:"model_id" db:"model_id"`
	Name       string                 `json:"name" db:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty" db:"-"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// Formula returns the metric formula; "function" is accepted as a legacy key
func (m *ModelMetric) Formula() string {
	for _, key := range []string{"formula", "function"} {
		if v, ok := m.Parameters[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Target returns the configured target value of the metric, if any
func (m *ModelMetric) Target() *float64 {
	switch v := m.Parameters["target"].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// ModelMetricLog is one computed metric value at a point in time
type ModelMetricLog struct {
	ID            string             `json:"id" bson:"_id"`
	ModelMetricID string             `json:"model_metric_id" bson:"model_metric_id"`
	ModelID       string             `json:"model_id" bson:"model_id"`
	Value         float64            `json:"value" bson:"value"`
	Label         string             `json:"label" bson:"label"`
	Logs          []ModelLog         `json:"logs,omitempty" bson:"logs,omitempty"`
	Breakdown     map[string]float64 `json:"breakdown,omitempty" bson:"breakdown,omitempty"` // per-label values for multilabel metrics
	Version       string             `json:"version,omitempty" bson:"version,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	DeletedAt     *time.Time         `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

// HealthCheckLabel marks metric logs produced by endpoint health checks
const HealthCheckLabel = "health_check"

// IsHealthCheck reports whether the metric log belongs to the health-check path
func (l *ModelMetricLog) IsHealthCheck() bool {
	return l.Label == HealthCheckLabel
}

// AlertType selects the aggregate an alert rule evaluates
type AlertType string

const (
	AlertTypeAverage AlertType = "average"
	AlertTypeMaxMin  AlertType = "max_min"
	AlertTypeLast    AlertType = "last"
)

// ComparingOperator compares an aggregate against the rule threshold
type ComparingOperator string

const (
	OperatorGreaterThan ComparingOperator = "greater_than"
	OperatorLessThan    ComparingOperator = "less_than"
	OperatorEqual       ComparingOperator = "equal"
)

// Compare applies the operator to value and threshold
func (o ComparingOperator) Compare(value, threshold float64) (bool, error) {
	switch o {
	case OperatorGreaterThan:
		return value > threshold, nil
	case OperatorLessThan:
		return value < threshold, nil
	case OperatorEqual:
		return value == threshold, nil
	default:
		return false, fmt.Errorf("unknown comparing operator: %s", o)
	}
}

// AlertConfiguration is a company alert rule bound to a metric
type AlertConfiguration struct {
	ID                string            `json:"id" db:"id"`
	CompanyID         string            `json:"company_id" db:"company_id"`
	ModelMetricID     string            `json:"model_metric_id" db:"model_metric_id"`
	AlertType         AlertType         `json:"alert_type" db:"alert_type"`
	ComparingOperator ComparingOperator `json:"comparing_operator" db:"comparing_operator"`
	AlertThreshold    float64           `json:"alert_threshold" db:"alert_threshold"`
	AlertSeverity     string            `json:"alert_severity" db:"alert_severity"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

// Alert kinds and severities
const (
	AlertKindError  = "error"
	AlertKindMetric = "metric"

	SeverityCritical = "critical"
)

// Alert is a triggered notification
type Alert struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	ModelID       string    `json:"model_id"`
	ModelMetricID *string   `json:"model_metric_id,omitempty"`
	Data          AlertData `json:"data"`
	CreatedAt     time.Time `json:"created_at"`
}

// AlertData is the snapshot stored with an alert
type AlertData struct {
	Value    float64    `json:"value"`
	AvgValue *float64   `json:"avg_value,omitempty"`
	Target   *float64   `json:"target,omitempty"`
	Rule     string     `json:"rule,omitempty"`
	Logs     []ModelLog `json:"logs,omitempty"`
}

// Range types and entity types for MetricRange
const (
	RangeTypeWeekly = "weekly"
	EntityTypeModel = "model"
)

// MetricRange is a rolling aggregate of metric averages for one entity and period
type MetricRange struct {
	ID         string             `json:"id"`
	CompanyID  string             `json:"company_id"`
	EntityType string             `json:"entity_type"`
	EntityID   string             `json:"entity_id"`
	RangeType  string             `json:"range_type"`
	StartDate  time.Time          `json:"start_date"`
	EndDate    time.Time          `json:"end_date"`
	Metrics    map[string]float64 `json:"metrics"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// MetricRangeKey identifies a MetricRange row
type MetricRangeKey struct {
	CompanyID  string
	EntityType string
	EntityID   string
	RangeType  string
	StartDate  time.Time
	EndDate    time.Time
}

// Agent node types
const (
	NodeTypeModel = "model"
	NodeTypeTool  = "tool"
)

// AgentNode is one step of a multi-step agent
type AgentNode struct {
	ID        string    `json:"id" db:"id"`
	AgentID   string    `json:"agent_id" db:"agent_id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	ModelID   *string   `json:"model_id,omitempty" db:"model_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AgentLog groups all node executions of one agent invocation (a run)
type AgentLog struct {
	ID        string    `json:"id" bson:"_id"`
	AgentID   string    `json:"agent_id" bson:"agent_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// AgentNodeLog is one node execution inside a run
type AgentNodeLog struct {
	ID          string                 `json:"id" bson:"_id"`
	AgentLogID  string                 `json:"agent_log_id" bson:"agent_log_id"`
	AgentNodeID string                 `json:"agent_node_id" bson:"agent_node_id"`
	Input       string                 `json:"input" bson:"input"`
	Output      string                 `json:"output" bson:"output"`
	Actual      map[string]interface{} `json:"actual,omitempty" bson:"actual,omitempty"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
}

// Job run statuses
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// JobRun records one invocation of a scheduled job
type JobRun struct {
	ID         string     `json:"id" db:"id"`
	Job        string     `json:"job" db:"job"`
	Status     string     `json:"status" db:"status"`
	Attempt    int        `json:"attempt" db:"attempt"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
