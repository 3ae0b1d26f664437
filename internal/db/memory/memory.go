// Package memory implements the full Database interface in process.
// It backs the "memory" provider and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// Memory is an in-process Database
type Memory struct {
	mu sync.RWMutex

	models       map[string]*models.Model
	metrics      map[string]*models.ModelMetric
	alertConfigs map[string]*models.AlertConfiguration
	alerts       []*models.Alert
	ranges       map[rangeKey]*models.MetricRange
	agentNodes   map[string]*models.AgentNode
	jobRuns      map[string]*models.JobRun

	modelLogs     map[string]*models.ModelLog
	modelLogOrder []string
	metricLogs    []*models.ModelMetricLog
	agentLogs     map[string]*models.AgentLog
	agentNodeLogs []*models.AgentNodeLog
	connected     bool
}

type rangeKey struct {
	companyID, entityType, entityID, rangeType string
	start, end                                 int64
}

func toRangeKey(k models.MetricRangeKey) rangeKey {
	return rangeKey{k.CompanyID, k.EntityType, k.EntityID, k.RangeType, k.StartDate.UnixNano(), k.EndDate.UnixNano()}
}

// New creates an empty store
func New() *Memory {
	return &Memory{
		models:       make(map[string]*models.Model),
		metrics:      make(map[string]*models.ModelMetric),
		alertConfigs: make(map[string]*models.AlertConfiguration),
		ranges:       make(map[rangeKey]*models.MetricRange),
		agentNodes:   make(map[string]*models.AgentNode),
		jobRuns:      make(map[string]*models.JobRun),
		modelLogs:    make(map[string]*models.ModelLog),
		agentLogs:    make(map[string]*models.AgentLog),
	}
}

var _ db.Database = (*Memory)(nil)

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func inWindow(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, db.ErrNotFound)
}

// Models

func (m *Memory) CreateModel(ctx context.Context, model *models.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	model.ID = newID(model.ID)
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now
	cp := *model
	m.models[model.ID] = &cp
	return nil
}

func (m *Memory) GetModel(ctx context.Context, id string) (*models.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	model, ok := m.models[id]
	if !ok {
		return nil, notFound("model", id)
	}
	cp := *model
	return &cp, nil
}

func (m *Memory) ListModels(ctx context.Context) ([]*models.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Model, 0, len(m.models))
	for _, model := range m.models {
		cp := *model
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateModelMetric(ctx context.Context, metric *models.ModelMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric.ID = newID(metric.ID)
	metric.CreatedAt = time.Now()
	cp := *metric
	m.metrics[metric.ID] = &cp
	return nil
}

func (m *Memory) GetModelMetric(ctx context.Context, id string) (*models.ModelMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metric, ok := m.metrics[id]
	if !ok {
		return nil, notFound("model metric", id)
	}
	cp := *metric
	return &cp, nil
}

func (m *Memory) ListModelMetrics(ctx context.Context, modelID string) ([]*models.ModelMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.ModelMetric{}
	for _, metric := range m.metrics {
		if metric.ModelID == modelID {
			cp := *metric
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Alerts

func (m *Memory) CreateAlertConfiguration(ctx context.Context, cfg *models.AlertConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.ID = newID(cfg.ID)
	cfg.CreatedAt = time.Now()
	cp := *cfg
	m.alertConfigs[cfg.ID] = &cp
	return nil
}

func (m *Memory) ListAlertConfigurations(ctx context.Context, modelMetricID string) ([]*models.AlertConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.AlertConfiguration{}
	for _, cfg := range m.alertConfigs {
		if cfg.ModelMetricID == modelMetricID {
			cp := *cfg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) insertAlert(alert *models.Alert) {
	alert.ID = newID(alert.ID)
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	cp := *alert
	m.alerts = append(m.alerts, &cp)
}

func (m *Memory) CreateAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertAlert(alert)
	return nil
}

func (m *Memory) CreateAlertIfAbsent(ctx context.Context, alert *models.Alert, since time.Time) (bool, error) {
	if alert.ModelMetricID == nil {
		return false, fmt.Errorf("alert dedup requires a model metric id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.alerts {
		if existing.ModelMetricID != nil && *existing.ModelMetricID == *alert.ModelMetricID && !existing.CreatedAt.Before(since) {
			return false, nil
		}
	}
	m.insertAlert(alert)
	return true, nil
}

func (m *Memory) ListAlerts(ctx context.Context, filter shared.AlertFilter) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.Alert{}
	for _, a := range m.alerts {
		if filter.ModelID != "" && a.ModelID != filter.ModelID {
			continue
		}
		if filter.ModelMetricID != "" && (a.ModelMetricID == nil || *a.ModelMetricID != filter.ModelMetricID) {
			continue
		}
		if filter.Since != nil && a.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Metric ranges

func copyRange(mr *models.MetricRange) *models.MetricRange {
	cp := *mr
	cp.Metrics = make(map[string]float64, len(mr.Metrics))
	for k, v := range mr.Metrics {
		cp.Metrics[k] = v
	}
	return &cp
}

func (m *Memory) UpsertMetricRange(ctx context.Context, key models.MetricRangeKey, label string, value float64) (*models.MetricRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	k := toRangeKey(key)
	mr, ok := m.ranges[k]
	if !ok {
		mr = &models.MetricRange{
			ID:         uuid.New().String(),
			CompanyID:  key.CompanyID,
			EntityType: key.EntityType,
			EntityID:   key.EntityID,
			RangeType:  key.RangeType,
			StartDate:  key.StartDate,
			EndDate:    key.EndDate,
			Metrics:    map[string]float64{},
			CreatedAt:  now,
		}
		m.ranges[k] = mr
	}
	mr.Metrics[label] = value
	mr.UpdatedAt = now
	return copyRange(mr), nil
}

func (m *Memory) GetMetricRange(ctx context.Context, key models.MetricRangeKey) (*models.MetricRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mr, ok := m.ranges[toRangeKey(key)]
	if !ok {
		return nil, notFound("metric range", key.EntityID)
	}
	return copyRange(mr), nil
}

func (m *Memory) ListMetricRanges(ctx context.Context, entityType, entityID string) ([]*models.MetricRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.MetricRange{}
	for _, mr := range m.ranges {
		if mr.EntityType == entityType && mr.EntityID == entityID {
			out = append(out, copyRange(mr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

// Agent nodes

func (m *Memory) CreateAgentNode(ctx context.Context, node *models.AgentNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node.ID = newID(node.ID)
	node.CreatedAt = time.Now()
	cp := *node
	m.agentNodes[node.ID] = &cp
	return nil
}

func (m *Memory) ListAgentNodes(ctx context.Context, ids []string) ([]*models.AgentNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*models.AgentNode{}
	for _, id := range ids {
		if node, ok := m.agentNodes[id]; ok {
			cp := *node
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Job runs

func (m *Memory) CreateJobRun(ctx context.Context, run *models.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run.ID = newID(run.ID)
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	cp := *run
	m.jobRuns[run.ID] = &cp
	return nil
}

func (m *Memory) UpdateJobRun(ctx context.Context, run *models.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.jobRuns[run.ID]
	if !ok {
		return notFound("job run", run.ID)
	}
	existing.Status = run.Status
	existing.Attempt = run.Attempt
	existing.Error = run.Error
	existing.FinishedAt = run.FinishedAt
	return nil
}

func (m *Memory) ListJobRuns(ctx context.Context, job string, limit int) ([]*models.JobRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := []*models.JobRun{}
	for _, run := range m.jobRuns {
		if run.Job == job {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
