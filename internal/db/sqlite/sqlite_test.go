package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()

	s, err := New(&db.Config{Provider: "sqlite", URI: filepath.Join(t.TempDir(), "gauge.db")})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func seedMetric(t *testing.T, s *SQLite) (*models.Model, *models.ModelMetric) {
	t.Helper()
	ctx := context.Background()

	model := &models.Model{
		CompanyID:   "company-1",
		Name:        "spam-filter",
		ProblemType: models.ProblemBinaryClass,
		Parameters:  map[string]interface{}{"mapping": map[string]interface{}{"spam": 1.0, "ham": 0.0}},
	}
	require.NoError(t, s.CreateModel(ctx, model))

	metric := &models.ModelMetric{
		ModelID:    model.ID,
		Name:       "accuracy",
		Parameters: map[string]interface{}{"formula": "(true_positive + true_negative) / (real_true + real_false)", "target": 0.9},
	}
	require.NoError(t, s.CreateModelMetric(ctx, metric))
	return model, metric
}

func TestMigrationsApplied(t *testing.T) {
	s := newTestStore(t)

	version, dirty, ok, err := db.MigrationVersion(s.DB())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestModelsAndMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	model, metric := seedMetric(t, s)

	got, err := s.GetModel(ctx, model.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProblemBinaryClass, got.ProblemType)
	assert.Equal(t, map[string]int{"spam": 1, "ham": 0}, got.ClassMapping())

	all, err := s.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	metrics, err := s.ListModelMetrics(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, metric.Formula(), metrics[0].Formula())
	require.NotNil(t, metrics[0].Target())
	assert.Equal(t, 0.9, *metrics[0].Target())

	_, err = s.GetModel(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAlertConfigurations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, metric := seedMetric(t, s)

	cfg := &models.AlertConfiguration{
		CompanyID:         "company-1",
		ModelMetricID:     metric.ID,
		AlertType:         models.AlertTypeAverage,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    0.8,
		AlertSeverity:     "high",
	}
	require.NoError(t, s.CreateAlertConfiguration(ctx, cfg))

	cfgs, err := s.ListAlertConfigurations(ctx, metric.ID)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, models.OperatorLessThan, cfgs[0].ComparingOperator)
	assert.Equal(t, 0.8, cfgs[0].AlertThreshold)
}

func TestCreateAlertIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	model, metric := seedMetric(t, s)

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	newAlert := func(at time.Time) *models.Alert {
		return &models.Alert{
			Type:          models.AlertKindMetric,
			Severity:      "high",
			ModelID:       model.ID,
			ModelMetricID: &metric.ID,
			Data:          models.AlertData{Value: 0.5},
			CreatedAt:     at,
		}
	}

	created, err := s.CreateAlertIfAbsent(ctx, newAlert(base), base.Add(-8*time.Hour))
	require.NoError(t, err)
	assert.True(t, created)

	later := base.Add(8 * time.Hour)
	created, err = s.CreateAlertIfAbsent(ctx, newAlert(later), later.Add(-8*time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	after := base.Add(8*time.Hour + time.Minute)
	created, err = s.CreateAlertIfAbsent(ctx, newAlert(after), after.Add(-8*time.Hour))
	require.NoError(t, err)
	assert.True(t, created)

	alerts, err := s.ListAlerts(ctx, shared.AlertFilter{ModelMetricID: metric.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.True(t, alerts[0].CreatedAt.Equal(after))
	assert.Equal(t, 0.5, alerts[0].Data.Value)
}

func TestCreateAlertIfAbsentConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	model, metric := seedMetric(t, s)
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateAlertIfAbsent(ctx, &models.Alert{
				Type:          models.AlertKindMetric,
				Severity:      "high",
				ModelID:       model.ID,
				ModelMetricID: &metric.ID,
				CreatedAt:     now,
			}, now.Add(-8*time.Hour))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestHealthAlertWithoutMetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	model, _ := seedMetric(t, s)

	require.NoError(t, s.CreateAlert(ctx, &models.Alert{
		Type:     models.AlertKindError,
		Severity: models.SeverityCritical,
		ModelID:  model.ID,
	}))

	alerts, err := s.ListAlerts(ctx, shared.AlertFilter{ModelID: model.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Nil(t, alerts[0].ModelMetricID)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestUpsertMetricRangeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	key := models.MetricRangeKey{
		CompanyID:  "company-1",
		EntityType: models.EntityTypeModel,
		EntityID:   "model-1",
		RangeType:  models.RangeTypeWeekly,
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 7).Add(-time.Millisecond),
	}

	_, err := s.UpsertMetricRange(ctx, key, "accuracy", 0.8)
	require.NoError(t, err)
	_, err = s.UpsertMetricRange(ctx, key, "precision", 0.7)
	require.NoError(t, err)
	mr, err := s.UpsertMetricRange(ctx, key, "accuracy", 0.85)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"accuracy": 0.85, "precision": 0.7}, mr.Metrics)

	ranges, err := s.ListMetricRanges(ctx, models.EntityTypeModel, "model-1")
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, mr.ID, ranges[0].ID)

	got, err := s.GetMetricRange(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Metrics["accuracy"])
}

func TestAgentNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	modelID := "model-1"
	a := &models.AgentNode{AgentID: "agent-1", Name: "classify", Type: models.NodeTypeModel, ModelID: &modelID}
	b := &models.AgentNode{AgentID: "agent-1", Name: "search", Type: models.NodeTypeTool}
	require.NoError(t, s.CreateAgentNode(ctx, a))
	require.NoError(t, s.CreateAgentNode(ctx, b))

	nodes, err := s.ListAgentNodes(ctx, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.NotNil(t, nodes[0].ModelID)
	assert.Equal(t, modelID, *nodes[0].ModelID)
	assert.Nil(t, nodes[1].ModelID)
}

func TestJobRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.JobRun{Job: "metrics", Status: models.JobStatusRunning, Attempt: 1}
	require.NoError(t, s.CreateJobRun(ctx, run))

	finished := time.Now()
	run.Status = models.JobStatusFailed
	run.Error = "timeout"
	run.FinishedAt = &finished
	require.NoError(t, s.UpdateJobRun(ctx, run))

	runs, err := s.ListJobRuns(ctx, "metrics", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobStatusFailed, runs[0].Status)
	assert.Equal(t, "timeout", runs[0].Error)
	require.NotNil(t, runs[0].FinishedAt)

	err = s.UpdateJobRun(ctx, &models.JobRun{ID: "missing"})
	assert.ErrorIs(t, err, db.ErrNotFound)
}
