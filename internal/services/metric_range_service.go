package services

import (
	"context"
	"fmt"
	"time"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/stats"
	"github.com/AI2HU/gauge/internal/telemetry"
)

// MetricRangeService keeps the weekly average of every metric per model
type MetricRangeService struct {
	db      db.Database
	loc     *time.Location
	metrics *telemetry.Metrics
	now     func() time.Time
	log     *logger.Logger
}

// NewMetricRangeService creates a range aggregator using loc for week boundaries
func NewMetricRangeService(database db.Database, loc *time.Location, metrics *telemetry.Metrics) *MetricRangeService {
	if loc == nil {
		loc = time.Local
	}
	return &MetricRangeService{
		db:      database,
		loc:     loc,
		metrics: metrics,
		now:     time.Now,
		log:     logger.Named("ranges"),
	}
}

// OnMetricLog folds the metric's current weekly average into the week's range row
func (s *MetricRangeService) OnMetricLog(ctx context.Context, model *models.Model, metric *models.ModelMetric, metricLog *models.ModelMetricLog) error {
	if metricLog.IsHealthCheck() {
		return nil
	}
	_, err := s.Update(ctx, model, metric, metricLog.Label)
	return err
}

// Update recomputes the weekly average of metric and stores it under label
func (s *MetricRangeService) Update(ctx context.Context, model *models.Model, metric *models.ModelMetric, label string) (*models.MetricRange, error) {
	start, end := stats.WeekBounds(s.now(), s.loc)

	avg, n, err := s.db.AverageMetricValue(ctx, metric.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute weekly average: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	if label == "" {
		label = metric.Name
	}

	key := models.MetricRangeKey{
		CompanyID:  model.CompanyID,
		EntityType: models.EntityTypeModel,
		EntityID:   model.ID,
		RangeType:  models.RangeTypeWeekly,
		StartDate:  start,
		EndDate:    end,
	}
	mr, err := s.db.UpsertMetricRange(ctx, key, label, avg)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert metric range: %w", err)
	}

	s.metrics.RangeUpserted()
	s.log.Debug("Week %s of model %s: %s = %.4f over %d logs", start.Format("2006-01-02"), model.ID, label, avg, n)
	return mr, nil
}
