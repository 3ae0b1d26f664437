package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/cache"
	"github.com/AI2HU/gauge/internal/calculator"
	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/db/memory"
	"github.com/AI2HU/gauge/internal/formula"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

const accuracyFormula = "(true_positive + true_negative) / (real_true + real_false)"

type fixture struct {
	store  *memory.Memory
	model  *models.Model
	metric *models.ModelMetric
}

func newFixture(t *testing.T, problemType models.ProblemType) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	model := &models.Model{CompanyID: "company-1", Name: "classifier", ProblemType: problemType}
	require.NoError(t, store.CreateModel(ctx, model))

	metric := &models.ModelMetric{
		ModelID:    model.ID,
		Name:       "accuracy",
		Parameters: map[string]interface{}{"formula": accuracyFormula, "target": 0.9},
	}
	require.NoError(t, store.CreateModelMetric(ctx, metric))

	return &fixture{store: store, model: model, metric: metric}
}

func (f *fixture) addLogs(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.store.CreateModelLog(context.Background(), &models.ModelLog{
			ModelID:   f.model.ID,
			Actual:    map[string]interface{}{"modelClass": i%2 == 0, "class": true},
			Processed: true,
		}))
	}
}

func (f *fixture) eligible(t *testing.T) int {
	t.Helper()
	logs, err := f.store.ListEligibleModelLogs(context.Background(), f.model.ID, 0)
	require.NoError(t, err)
	return len(logs)
}

func newJob(database db.Database, listeners ...MetricListener) *MetricJobService {
	return NewMetricJobService(database, calculator.NewRegistry(nil), config.JobsConfig{Workers: 2}, nil, listeners...)
}

func TestRunSkipsBatchBelowMinimum(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 29)

	summary, err := newJob(f.store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ModelsSkipped)
	assert.Equal(t, 0, summary.MetricLogs)
	assert.Equal(t, 0, summary.LogsMarked)
	assert.Equal(t, 29, f.eligible(t))
}

func TestRunComputesAndMarksFullBatch(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 30)

	summary, err := newJob(f.store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ModelsProcessed)
	assert.Equal(t, 1, summary.MetricLogs)
	assert.Equal(t, 30, summary.LogsMarked)
	assert.Equal(t, 0, f.eligible(t))

	logs, err := f.store.ListModelMetricLogs(context.Background(), shared.MetricLogFilter{ModelMetricID: f.metric.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.InDelta(t, 0.5, logs[0].Value, 1e-9)
	assert.Equal(t, "accuracy", logs[0].Label)
}

func TestConfigErrorsDoNotBlockMarking(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateModelMetric(ctx, &models.ModelMetric{ModelID: f.model.ID, Name: "no-formula"}))
	require.NoError(t, f.store.CreateModelMetric(ctx, &models.ModelMetric{
		ModelID: f.model.ID, Name: "broken", Parameters: map[string]interface{}{"formula": "precision * 2"},
	}))
	f.addLogs(t, 30)

	summary, err := newJob(f.store).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.MetricLogs)
	assert.Equal(t, 2, summary.MetricFailures)
	assert.Equal(t, 30, summary.LogsMarked)
}

type failingMetricLogStore struct {
	*memory.Memory
}

func (s failingMetricLogStore) CreateModelMetricLog(ctx context.Context, log *models.ModelMetricLog) error {
	return errors.New("connection refused")
}

func TestStoreFailureLeavesBatchUnmarked(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 30)

	summary, err := newJob(failingMetricLogStore{f.store}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompleteRun)
	assert.True(t, IsRetryable(err))

	assert.Equal(t, 1, summary.ModelsFailed)
	assert.Equal(t, 0, summary.LogsMarked)
	assert.Equal(t, 30, f.eligible(t))
}

func TestMetricLogKeepsNewestSupportingLogs(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		CompanyID:         f.model.CompanyID,
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeLast,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    0.8,
		AlertSeverity:     "high",
	}))
	f.addLogs(t, 120)

	batch, err := f.store.ListEligibleModelLogs(ctx, f.model.ID, 0)
	require.NoError(t, err)

	alerts := NewAlertService(f.store, config.AlertsConfig{}, nil)
	job := NewMetricJobService(f.store, calculator.NewRegistry(nil), config.JobsConfig{Workers: 2, MaxSupportingLogs: 10}, nil, alerts)
	summary, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, summary.LogsMarked)

	logs, err := f.store.ListModelMetricLogs(ctx, shared.MetricLogFilter{ModelMetricID: f.metric.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.InDelta(t, 0.5, logs[0].Value, 1e-9)
	require.Len(t, logs[0].Logs, 10)
	assert.Equal(t, batch[110].ID, logs[0].Logs[0].ID)
	assert.Equal(t, batch[119].ID, logs[0].Logs[9].ID)

	created, err := f.store.ListAlerts(ctx, shared.AlertFilter{ModelID: f.model.ID})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Len(t, created[0].Data.Logs, 10)
}

func TestSupportingLogsDefaultCap(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 80)

	_, err := newJob(f.store).Run(context.Background())
	require.NoError(t, err)

	logs, err := f.store.ListModelMetricLogs(context.Background(), shared.MetricLogFilter{ModelMetricID: f.metric.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Len(t, logs[0].Logs, DefaultMaxSupportingLogs)
}

func TestMaxBatchSizeLeavesRemainderForNextRun(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 70)

	job := NewMetricJobService(f.store, calculator.NewRegistry(nil), config.JobsConfig{Workers: 1, MaxBatchSize: 40}, nil)
	summary, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, summary.LogsMarked)
	assert.Equal(t, 30, f.eligible(t))

	summary, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, summary.LogsMarked)
	assert.Equal(t, 0, f.eligible(t))
}

// slowMetricStore holds metric and marking queries until the caller gives up
type slowMetricStore struct {
	*memory.Memory
}

func (s slowMetricStore) ListModelMetrics(ctx context.Context, modelID string) ([]*models.ModelMetric, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJobQueriesHonourQueryTimeout(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	f.addLogs(t, 30)

	job := NewMetricJobService(slowMetricStore{f.store}, calculator.NewRegistry(nil), config.JobsConfig{Workers: 1, QueryTimeout: 20 * time.Millisecond}, nil)
	res, err := job.processModel(context.Background(), f.model)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, outcomeFailed, res.outcome)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 30, f.eligible(t))
}

func TestUnsupportedProblemTypeIsSkipped(t *testing.T) {
	f := newFixture(t, models.ProblemDataExtraction)
	f.addLogs(t, 40)

	summary, err := newJob(f.store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ModelsSkipped)
	assert.Equal(t, 40, f.eligible(t))
}

func TestMetricFailureIsolatedPerModel(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	f.addLogs(t, 30)

	other := &models.Model{CompanyID: "company-1", Name: "multi", ProblemType: models.ProblemMultiClass}
	require.NoError(t, f.store.CreateModel(ctx, other))
	require.NoError(t, f.store.CreateModelMetric(ctx, &models.ModelMetric{ModelID: other.ID, Name: "broken"}))
	for i := 0; i < 30; i++ {
		require.NoError(t, f.store.CreateModelLog(ctx, &models.ModelLog{
			ModelID: other.ID, Processed: true, Actual: map[string]interface{}{"modelClass": "a", "class": "a"},
		}))
	}

	summary, err := newJob(f.store).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ModelsProcessed)
	assert.Equal(t, 60, summary.LogsMarked)
	assert.Equal(t, 1, summary.MetricFailures)
}

func TestRunFansOutToListeners(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		CompanyID:         f.model.CompanyID,
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeLast,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    0.8,
		AlertSeverity:     "high",
	}))
	f.addLogs(t, 30)

	alerts := NewAlertService(f.store, config.AlertsConfig{}, nil)
	ranges := NewMetricRangeService(f.store, time.UTC, nil)
	_, err := newJob(f.store, alerts, ranges).Run(ctx)
	require.NoError(t, err)

	created, err := f.store.ListAlerts(ctx, shared.AlertFilter{ModelID: f.model.ID})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.AlertKindMetric, created[0].Type)
	assert.Equal(t, "high", created[0].Severity)
	require.NotNil(t, created[0].Data.Target)
	assert.Equal(t, 0.9, *created[0].Data.Target)
	require.NotNil(t, created[0].Data.AvgValue)
	assert.Len(t, created[0].Data.Logs, 30)

	weekly, err := f.store.ListMetricRanges(ctx, models.EntityTypeModel, f.model.ID)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.InDelta(t, 0.5, weekly[0].Metrics["accuracy"], 1e-9)
}

func TestHealthCheckFailureAlwaysAlerts(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeAverage,
		ComparingOperator: models.OperatorGreaterThan,
		AlertThreshold:    1000,
	}))

	alerts := NewAlertService(f.store, config.AlertsConfig{}, nil)
	ranges := NewMetricRangeService(f.store, time.UTC, nil)
	job := newJob(f.store, alerts, ranges)

	for i := 0; i < 2; i++ {
		_, err := job.RecordHealthCheck(ctx, f.model.ID, false)
		require.NoError(t, err)
	}
	_, err := job.RecordHealthCheck(ctx, f.model.ID, true)
	require.NoError(t, err)

	created, err := f.store.ListAlerts(ctx, shared.AlertFilter{ModelID: f.model.ID})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, a := range created {
		assert.Equal(t, models.AlertKindError, a.Type)
		assert.Equal(t, models.SeverityCritical, a.Severity)
		assert.Nil(t, a.ModelMetricID)
	}

	weekly, err := f.store.ListMetricRanges(ctx, models.EntityTypeModel, f.model.ID)
	require.NoError(t, err)
	assert.Empty(t, weekly)

	_, err = job.RecordHealthCheck(ctx, "missing", false)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAggregate(t *testing.T) {
	values := []float64{0.9, 0.5, 0.7}

	tests := []struct {
		alertType models.AlertType
		want      float64
		wantErr   bool
	}{
		{models.AlertTypeAverage, 0.7, false},
		{models.AlertTypeMaxMin, 0.4, false},
		{models.AlertTypeLast, 0.9, false},
		{models.AlertType("median"), 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.alertType), func(t *testing.T) {
			got, err := aggregate(tt.alertType, values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func seedMetricLogs(t *testing.T, f *fixture, values ...float64) *models.ModelMetricLog {
	t.Helper()
	var last *models.ModelMetricLog
	for _, v := range values {
		last = &models.ModelMetricLog{ModelMetricID: f.metric.ID, ModelID: f.model.ID, Value: v, Label: f.metric.Name}
		require.NoError(t, f.store.CreateModelMetricLog(context.Background(), last))
	}
	return last
}

func TestAlertDedupWindow(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeAverage,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    0.8,
		AlertSeverity:     "medium",
	}))
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeLast,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    0.9,
		AlertSeverity:     "low",
	}))
	metricLog := seedMetricLogs(t, f, 0.4, 0.6)

	s := NewAlertService(f.store, config.AlertsConfig{}, nil)
	start := time.Now()

	s.now = func() time.Time { return start }
	alert, err := s.checkThresholds(ctx, f.model, f.metric, metricLog)
	require.NoError(t, err)
	require.NotNil(t, alert)

	s.now = func() time.Time { return start.Add(time.Hour) }
	alert, err = s.checkThresholds(ctx, f.model, f.metric, metricLog)
	require.NoError(t, err)
	assert.Nil(t, alert)

	s.now = func() time.Time { return start.Add(8*time.Hour + time.Minute) }
	alert, err = s.checkThresholds(ctx, f.model, f.metric, metricLog)
	require.NoError(t, err)
	require.NotNil(t, alert)

	created, err := f.store.ListAlerts(ctx, shared.AlertFilter{ModelMetricID: f.metric.ID})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestConcurrentTriggersCreateOneAlert(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeLast,
		ComparingOperator: models.OperatorEqual,
		AlertThreshold:    0.25,
	}))
	metricLog := seedMetricLogs(t, f, 0.25)
	s := NewAlertService(f.store, config.AlertsConfig{}, nil)

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() { errs <- s.OnMetricLog(ctx, f.model, f.metric, metricLog) }()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}

	created, err := f.store.ListAlerts(ctx, shared.AlertFilter{ModelMetricID: f.metric.ID})
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestRuleSkippedWithoutMetricLogs(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeAverage,
		ComparingOperator: models.OperatorLessThan,
		AlertThreshold:    100,
	}))

	s := NewAlertService(f.store, config.AlertsConfig{}, nil)
	alert, err := s.checkThresholds(ctx, f.model, f.metric, &models.ModelMetricLog{Value: 1})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestAlertAggregatesOnlyRecentLogs(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	require.NoError(t, f.store.CreateAlertConfiguration(ctx, &models.AlertConfiguration{
		ModelMetricID:     f.metric.ID,
		AlertType:         models.AlertTypeMaxMin,
		ComparingOperator: models.OperatorGreaterThan,
		AlertThreshold:    0.5,
	}))

	base := time.Now().Add(-time.Hour)
	require.NoError(t, f.store.CreateModelMetricLog(ctx, &models.ModelMetricLog{ModelMetricID: f.metric.ID, Value: 0, CreatedAt: base}))
	var metricLog *models.ModelMetricLog
	for i := 1; i <= 10; i++ {
		metricLog = &models.ModelMetricLog{ModelMetricID: f.metric.ID, Value: 0.8, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, f.store.CreateModelMetricLog(ctx, metricLog))
	}

	s := NewAlertService(f.store, config.AlertsConfig{}, nil)
	alert, err := s.checkThresholds(ctx, f.model, f.metric, metricLog)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestMetricRangeUpsertIsIdempotentPerWeek(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	s := NewMetricRangeService(f.store, time.UTC, nil)

	recall := &models.ModelMetric{ModelID: f.model.ID, Name: "recall"}
	require.NoError(t, f.store.CreateModelMetric(ctx, recall))

	seedMetricLogs(t, f, 0.4)
	_, err := s.Update(ctx, f.model, f.metric, "accuracy")
	require.NoError(t, err)

	seedMetricLogs(t, f, 0.6)
	mr, err := s.Update(ctx, f.model, f.metric, "accuracy")
	require.NoError(t, err)
	require.NotNil(t, mr)
	assert.InDelta(t, 0.5, mr.Metrics["accuracy"], 1e-9)

	require.NoError(t, f.store.CreateModelMetricLog(ctx, &models.ModelMetricLog{ModelMetricID: recall.ID, Value: 0.3}))
	require.NoError(t, s.OnMetricLog(ctx, f.model, recall, &models.ModelMetricLog{ModelMetricID: recall.ID}))

	weekly, err := f.store.ListMetricRanges(ctx, models.EntityTypeModel, f.model.ID)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, "company-1", weekly[0].CompanyID)
	assert.Equal(t, models.RangeTypeWeekly, weekly[0].RangeType)
	assert.Len(t, weekly[0].Metrics, 2)
	assert.InDelta(t, 0.3, weekly[0].Metrics["recall"], 1e-9)
	assert.Equal(t, time.Sunday, weekly[0].StartDate.Weekday())
}

func TestMetricRangeSkipsEmptyWeek(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	s := NewMetricRangeService(f.store, time.UTC, nil)

	mr, err := s.Update(context.Background(), f.model, f.metric, "accuracy")
	require.NoError(t, err)
	assert.Nil(t, mr)
}

func TestModelMetricSummary(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	seedMetricLogs(t, f, 0.2, 0.8, 0.5)

	s := NewStatsService(f.store, nil, time.Hour)
	start, end := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)

	summary, err := s.ModelMetricSummary(ctx, f.model.ID, start, end)
	require.NoError(t, err)
	require.Len(t, summary.Metrics, 1)

	m := summary.Metrics[0]
	assert.Equal(t, 3, m.Count)
	assert.InDelta(t, 0.5, m.Average, 1e-9)
	assert.Equal(t, 0.2, m.Min)
	assert.Equal(t, 0.8, m.Max)
	require.NotNil(t, m.Latest)
	assert.Equal(t, 0.5, *m.Latest)

	_, err = s.ModelMetricSummary(ctx, "missing", start, end)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestModelMetricSummaryServedFromCache(t *testing.T) {
	f := newFixture(t, models.ProblemBinaryClass)
	ctx := context.Background()
	seedMetricLogs(t, f, 0.2)

	s := NewStatsService(f.store, cache.NewMemory(time.Hour), time.Hour)
	start, end := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)

	first, err := s.ModelMetricSummary(ctx, f.model.ID, start, end)
	require.NoError(t, err)
	require.Equal(t, 1, first.Metrics[0].Count)

	seedMetricLogs(t, f, 0.4)
	second, err := s.ModelMetricSummary(ctx, f.model.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Metrics[0].Count)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"incomplete run", fmt.Errorf("%w: 1 models failed", ErrIncompleteRun), true},
		{"not found", db.ErrNotFound, false},
		{"missing formula", ErrMissingFormula, false},
		{"unsupported", calculator.ErrUnsupportedProblemType, false},
		{"formula", &formula.FormulaEvaluationError{Formula: "x", Err: formula.ErrUndefinedVariable}, false},
		{"store", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
