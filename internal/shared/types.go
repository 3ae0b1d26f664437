package shared

import (
	"time"
)

// LogFilter provides filtering options for listing model logs
type LogFilter struct {
	ModelID   string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int // 0 means no limit
}

// NodeLogFilter provides filtering options for listing agent node logs
type NodeLogFilter struct {
	NodeIDs   []string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int // 0 means no limit
}

// RunFilter selects agent runs that touched every requested node
type RunFilter struct {
	NodeIDs   []string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int // 0 means no limit
}

// MetricLogFilter provides filtering options for listing model metric logs
type MetricLogFilter struct {
	ModelMetricID string
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int // 0 means no limit
}

// AlertFilter provides filtering options for listing alerts
type AlertFilter struct {
	ModelID       string
	ModelMetricID string
	Since         *time.Time
	Limit         int // 0 means no limit
}
