package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AI2HU/gauge/internal/cache"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
	"github.com/AI2HU/gauge/internal/stats"
)

// StatsService provides the read side for metric values, alerts and weekly ranges
type StatsService struct {
	db     db.Database
	loader *cache.Loader
	ttl    time.Duration
}

// NewStatsService creates a new stats service; a nil cache disables caching
func NewStatsService(database db.Database, c cache.Cache, ttl time.Duration) *StatsService {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &StatsService{db: database, loader: cache.NewLoader(c), ttl: ttl}
}

type summaryKey struct {
	ModelID string    `json:"model_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// ModelMetricSummary returns count, average, min, max and latest value of every metric of
// a model in [start, end]. Results are cached for the configured TTL.
func (s *StatsService) ModelMetricSummary(ctx context.Context, modelID string, start, end time.Time) (*models.ModelMetricSummary, error) {
	key, err := cache.Key("metric-summary", summaryKey{ModelID: modelID, Start: start.UTC(), End: end.UTC()})
	if err != nil {
		return nil, err
	}

	summary, _, err := cache.Load(ctx, s.loader, key, s.ttl, func(ctx context.Context) (*models.ModelMetricSummary, error) {
		return s.computeSummary(ctx, modelID, start, end)
	})
	return summary, err
}

func (s *StatsService) computeSummary(ctx context.Context, modelID string, start, end time.Time) (*models.ModelMetricSummary, error) {
	model, err := s.db.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	metrics, err := s.db.ListModelMetrics(ctx, model.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model metrics: %w", err)
	}

	summary := &models.ModelMetricSummary{
		ModelID:   model.ID,
		StartDate: start,
		EndDate:   end,
		Metrics:   make([]models.MetricSummary, 0, len(metrics)),
		UpdatedAt: time.Now(),
	}

	for _, metric := range metrics {
		logs, err := s.db.ListModelMetricLogs(ctx, shared.MetricLogFilter{
			ModelMetricID: metric.ID,
			StartTime:     &start,
			EndTime:       &end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list metric logs for %s: %w", metric.Name, err)
		}

		values := make([]float64, len(logs))
		for i, l := range logs {
			values[i] = l.Value
		}
		agg := stats.Summarize(values)

		ms := models.MetricSummary{
			ModelMetricID: metric.ID,
			Name:          metric.Name,
			Count:         agg.Count,
			Average:       agg.Mean,
			Min:           agg.Min,
			Max:           agg.Max,
		}
		if len(logs) > 0 {
			latest := logs[0].Value
			ms.Latest = &latest
			ms.LatestAt = logs[0].CreatedAt
		}
		summary.Metrics = append(summary.Metrics, ms)
	}

	return summary, nil
}

// RecentAlerts returns the latest alerts of a model, newest first
func (s *StatsService) RecentAlerts(ctx context.Context, modelID string, limit int) ([]*models.Alert, error) {
	if _, err := s.db.GetModel(ctx, modelID); err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	alerts, err := s.db.ListAlerts(ctx, shared.AlertFilter{ModelID: modelID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// WeeklyRanges returns the weekly ranges of a model, most recent week first
func (s *StatsService) WeeklyRanges(ctx context.Context, modelID string) ([]*models.MetricRange, error) {
	ranges, err := s.db.ListMetricRanges(ctx, models.EntityTypeModel, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric ranges: %w", err)
	}
	return ranges, nil
}
