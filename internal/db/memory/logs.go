package memory

import (
	"context"
	"sort"
	"time"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// newestFirst orders by created_at descending, then id descending
func newestFirst(ti, tj time.Time, idi, idj string) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idi > idj
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// Model logs

func (m *Memory) CreateModelLog(ctx context.Context, log *models.ModelLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	cp := *log
	if _, exists := m.modelLogs[log.ID]; !exists {
		m.modelLogOrder = append(m.modelLogOrder, log.ID)
	}
	m.modelLogs[log.ID] = &cp
	return nil
}

func (m *Memory) ListEligibleModelLogs(ctx context.Context, modelID string, n int) ([]models.ModelLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.ModelLog{}
	for _, id := range m.modelLogOrder {
		log := m.modelLogs[id]
		if log.ModelID == modelID && log.EligibleForMetrics() {
			out = append(out, *log)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return limit(out, n), nil
}

func (m *Memory) MarkMetricProcessed(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	marked := 0
	for _, id := range ids {
		if log, ok := m.modelLogs[id]; ok && !log.MetricProcessed {
			log.MetricProcessed = true
			marked++
		}
	}
	return marked, nil
}

func (m *Memory) matchingModelLogs(filter shared.LogFilter) []models.ModelLog {
	out := []models.ModelLog{}
	for _, id := range m.modelLogOrder {
		log := m.modelLogs[id]
		if log.ModelID == filter.ModelID && inWindow(log.CreatedAt, filter.StartTime, filter.EndTime) {
			out = append(out, *log)
		}
	}
	return out
}

func (m *Memory) CountModelLogs(ctx context.Context, filter shared.LogFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.matchingModelLogs(filter)), nil
}

func (m *Memory) ListModelLogs(ctx context.Context, filter shared.LogFilter) ([]models.ModelLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.matchingModelLogs(filter)
	sort.SliceStable(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return limit(out, filter.Limit), nil
}

// Metric logs

func (m *Memory) CreateModelMetricLog(ctx context.Context, log *models.ModelMetricLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	cp := *log
	m.metricLogs = append(m.metricLogs, &cp)
	return nil
}

func (m *Memory) matchingMetricLogs(modelMetricID string, start, end *time.Time) []models.ModelMetricLog {
	out := []models.ModelMetricLog{}
	for _, log := range m.metricLogs {
		if log.ModelMetricID == modelMetricID && log.DeletedAt == nil && inWindow(log.CreatedAt, start, end) {
			out = append(out, *log)
		}
	}
	return out
}

func (m *Memory) ListModelMetricLogs(ctx context.Context, filter shared.MetricLogFilter) ([]models.ModelMetricLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.matchingMetricLogs(filter.ModelMetricID, filter.StartTime, filter.EndTime)
	sort.SliceStable(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	out = limit(out, filter.Limit)
	for i := range out {
		out[i].Logs = nil
	}
	return out, nil
}

func (m *Memory) AverageMetricValue(ctx context.Context, modelMetricID string, start, end time.Time) (float64, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := m.matchingMetricLogs(modelMetricID, &start, &end)
	if len(logs) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, log := range logs {
		sum += log.Value
	}
	return sum / float64(len(logs)), len(logs), nil
}

// Agent logs

func (m *Memory) CreateAgentLog(ctx context.Context, log *models.AgentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	cp := *log
	m.agentLogs[log.ID] = &cp
	return nil
}

func (m *Memory) CreateAgentNodeLog(ctx context.Context, log *models.AgentNodeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.ID = newID(log.ID)
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	cp := *log
	m.agentNodeLogs = append(m.agentNodeLogs, &cp)
	return nil
}

func (m *Memory) matchingNodeLogs(nodeIDs []string, start, end *time.Time) []models.AgentNodeLog {
	wanted := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = true
	}

	out := []models.AgentNodeLog{}
	for _, log := range m.agentNodeLogs {
		if wanted[log.AgentNodeID] && inWindow(log.CreatedAt, start, end) {
			out = append(out, *log)
		}
	}
	return out
}

func (m *Memory) CountNodeLogs(ctx context.Context, filter shared.NodeLogFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.matchingNodeLogs(filter.NodeIDs, filter.StartTime, filter.EndTime)), nil
}

func (m *Memory) ListNodeLogs(ctx context.Context, filter shared.NodeLogFilter) ([]models.AgentNodeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.matchingNodeLogs(filter.NodeIDs, filter.StartTime, filter.EndTime)
	sort.SliceStable(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return limit(out, filter.Limit), nil
}

type completeRun struct {
	id     string
	latest time.Time
}

// completeRuns groups node logs by run and keeps runs that touched every requested node
func (m *Memory) completeRuns(filter shared.RunFilter) []completeRun {
	distinct := make(map[string]bool, len(filter.NodeIDs))
	for _, id := range filter.NodeIDs {
		distinct[id] = true
	}
	if len(distinct) == 0 {
		return nil
	}

	seen := make(map[string]map[string]bool)
	latest := make(map[string]time.Time)
	for _, log := range m.matchingNodeLogs(filter.NodeIDs, filter.StartTime, filter.EndTime) {
		if seen[log.AgentLogID] == nil {
			seen[log.AgentLogID] = make(map[string]bool)
		}
		seen[log.AgentLogID][log.AgentNodeID] = true
		if log.CreatedAt.After(latest[log.AgentLogID]) {
			latest[log.AgentLogID] = log.CreatedAt
		}
	}

	var runs []completeRun
	for id, nodes := range seen {
		if len(nodes) == len(distinct) {
			runs = append(runs, completeRun{id: id, latest: latest[id]})
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return newestFirst(runs[i].latest, runs[j].latest, runs[i].id, runs[j].id)
	})
	return runs
}

func (m *Memory) CountCompleteRuns(ctx context.Context, filter shared.RunFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.completeRuns(filter)), nil
}

func (m *Memory) ListCompleteRunIDs(ctx context.Context, filter shared.RunFilter) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := limit(m.completeRuns(filter), filter.Limit)
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.id)
	}
	return ids, nil
}

func (m *Memory) ListRunNodeLogs(ctx context.Context, runIDs []string, filter shared.RunFilter) ([]models.AgentNodeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		runs[id] = true
	}

	out := []models.AgentNodeLog{}
	for _, log := range m.matchingNodeLogs(filter.NodeIDs, filter.StartTime, filter.EndTime) {
		if runs[log.AgentLogID] {
			out = append(out, log)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
