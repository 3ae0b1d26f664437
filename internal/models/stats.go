package models

import (
	"time"
)

// Sampler shapes
const (
	SampleModeModel    = "model"
	SampleModeNodes    = "nodes"
	SampleModeAgentRun = "agent_run"
)

// SampleRequest describes one export request to the adaptive sampler
type SampleRequest struct {
	Mode             string    `json:"mode"`
	ModelID          string    `json:"model_id,omitempty"`
	NodeIDs          []string  `json:"node_ids,omitempty"`
	Fields           []string  `json:"fields,omitempty"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	SamplePercentage *int      `json:"sample_percentage,omitempty"`
}

// SampleMetadata describes how an export was sized
type SampleMetadata struct {
	TotalEntries          int     `json:"total_entries"`
	SamplePercentage      int     `json:"sample_percentage"`
	EstimatedTokens       int     `json:"estimated_tokens"`
	NeedsSampling         bool    `json:"needs_sampling"`
	AvgTokensPerEntry     float64 `json:"avg_tokens_per_entry"`
	TotalLogsWithAllNodes *int    `json:"total_logs_with_all_nodes,omitempty"`
}

// SampleRun is one agent run in an agent-run export
type SampleRun struct {
	AgentLogID string                   `json:"agent_log_id"`
	Logs       []map[string]interface{} `json:"logs"`
}

// SampleResponse is the sampler output
type SampleResponse struct {
	ModelID  string                   `json:"model_id,omitempty"`
	NodeIDs  []string                 `json:"node_ids,omitempty"`
	Logs     []map[string]interface{} `json:"logs"`
	Runs     []SampleRun              `json:"runs,omitempty"`
	Metadata SampleMetadata           `json:"metadata"`
}

// MetricSummary aggregates one metric over a window
type MetricSummary struct {
	ModelMetricID string    `json:"model_metric_id"`
	Name          string    `json:"name"`
	Count         int       `json:"count"`
	Average       float64   `json:"average"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Latest        *float64  `json:"latest,omitempty"`
	LatestAt      time.Time `json:"latest_at,omitempty"`
}

// ModelMetricSummary aggregates all metrics of a model over a window
type ModelMetricSummary struct {
	ModelID   string          `json:"model_id"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Metrics   []MetricSummary `json:"metrics"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunSummary reports the outcome of one metric job pass
type RunSummary struct {
	ModelsProcessed int `json:"models_processed"`
	ModelsSkipped   int `json:"models_skipped"`
	ModelsFailed    int `json:"models_failed"`
	MetricLogs      int `json:"metric_logs"`
	MetricFailures  int `json:"metric_failures"`
	LogsMarked      int `json:"logs_marked"`
}

// APIResponse is the envelope of every JSON API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}
