package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AI2HU/gauge/internal/calculator"
	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/telemetry"
)

// DefaultMinBatchSize is the smallest batch worth computing metrics on
const DefaultMinBatchSize = 30

// DefaultMaxSupportingLogs bounds the batch logs copied onto each metric log
const DefaultMaxSupportingLogs = 50

// MetricListener reacts to a newly persisted metric log
type MetricListener interface {
	OnMetricLog(ctx context.Context, model *models.Model, metric *models.ModelMetric, log *models.ModelMetricLog) error
}

// MetricJobService turns eligible model logs into metric logs
type MetricJobService struct {
	db        db.Database
	registry  *calculator.Registry
	listeners []MetricListener
	metrics   *telemetry.Metrics
	cfg       config.JobsConfig
	log       *logger.Logger
}

// NewMetricJobService creates a new metric job service
func NewMetricJobService(database db.Database, registry *calculator.Registry, cfg config.JobsConfig, metrics *telemetry.Metrics, listeners ...MetricListener) *MetricJobService {
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = DefaultMinBatchSize
	}
	if cfg.MaxSupportingLogs <= 0 {
		cfg.MaxSupportingLogs = DefaultMaxSupportingLogs
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &MetricJobService{
		db:        database,
		registry:  registry,
		listeners: listeners,
		metrics:   metrics,
		cfg:       cfg,
		log:       logger.Named("metric-job"),
	}
}

type modelOutcome int

const (
	outcomeProcessed modelOutcome = iota
	outcomeSkipped
	outcomeFailed
)

type modelResult struct {
	outcome        modelOutcome
	metricLogs     int
	metricFailures int
	marked         int
}

// Run processes every model once. One model's failure never stops the others;
// ErrIncompleteRun is returned when any batch was left unmarked.
func (s *MetricJobService) Run(ctx context.Context) (*models.RunSummary, error) {
	start := time.Now()
	defer func() { s.metrics.JobDuration(time.Since(start).Seconds()) }()

	allModels, err := s.listModels(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info("Starting metric job for %d models", len(allModels))

	summary := &models.RunSummary{}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for _, model := range allModels {
		model := model
		g.Go(func() error {
			res, err := s.processModel(ctx, model)
			if err != nil {
				s.log.Error("Model %s (%s) failed: %v", model.Name, model.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch res.outcome {
			case outcomeProcessed:
				summary.ModelsProcessed++
			case outcomeSkipped:
				summary.ModelsSkipped++
			case outcomeFailed:
				summary.ModelsFailed++
			}
			summary.MetricLogs += res.metricLogs
			summary.MetricFailures += res.metricFailures
			summary.LogsMarked += res.marked
			return nil
		})
	}
	g.Wait()

	s.log.Info("Metric job finished: %d processed, %d skipped, %d failed, %d metric logs, %d logs marked",
		summary.ModelsProcessed, summary.ModelsSkipped, summary.ModelsFailed, summary.MetricLogs, summary.LogsMarked)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if summary.ModelsFailed > 0 {
		return summary, fmt.Errorf("%w: %d models failed", ErrIncompleteRun, summary.ModelsFailed)
	}
	return summary, nil
}

func (s *MetricJobService) listModels(ctx context.Context) ([]*models.Model, error) {
	queryCtx, cancel := s.queryContext(ctx)
	defer cancel()

	allModels, err := s.db.ListModels(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return allModels, nil
}

func (s *MetricJobService) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

// processModel computes every metric of model over its eligible batch and marks the batch
func (s *MetricJobService) processModel(ctx context.Context, model *models.Model) (modelResult, error) {
	if !s.registry.Supports(model.ProblemType) {
		s.log.Warning("No calculator for problem type %q of model %s, skipping", model.ProblemType, model.ID)
		return modelResult{outcome: outcomeSkipped}, nil
	}

	queryCtx, cancel := s.queryContext(ctx)
	logs, err := s.db.ListEligibleModelLogs(queryCtx, model.ID, s.cfg.MaxBatchSize)
	cancel()
	if err != nil {
		return modelResult{outcome: outcomeFailed}, fmt.Errorf("failed to fetch eligible logs: %w", err)
	}

	if len(logs) < s.cfg.MinBatchSize {
		s.log.Debug("Model %s has %d eligible logs, below batch minimum %d", model.ID, len(logs), s.cfg.MinBatchSize)
		return modelResult{outcome: outcomeSkipped}, nil
	}

	queryCtx, cancel = s.queryContext(ctx)
	metrics, err := s.db.ListModelMetrics(queryCtx, model.ID)
	cancel()
	if err != nil {
		return modelResult{outcome: outcomeFailed}, fmt.Errorf("failed to list model metrics: %w", err)
	}
	if len(metrics) == 0 {
		s.log.Debug("Model %s has no metrics configured, skipping", model.ID)
		return modelResult{outcome: outcomeSkipped}, nil
	}

	res := modelResult{outcome: outcomeProcessed}
	var mu sync.Mutex

	g := new(errgroup.Group)
	for _, metric := range metrics {
		metric := metric
		g.Go(func() error {
			err := s.computeMetric(ctx, model, metric, logs)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.metricLogs++
				return nil
			case IsConfigError(err):
				res.metricFailures++
				s.log.Warning("Skipping metric %s of model %s: %v", metric.Name, model.ID, err)
				return nil
			default:
				return fmt.Errorf("metric %s: %w", metric.Name, err)
			}
		})
	}
	if err := g.Wait(); err != nil {
		res.outcome = outcomeFailed
		return res, fmt.Errorf("batch left unmarked: %w", err)
	}

	ids := make([]string, len(logs))
	for i, l := range logs {
		ids[i] = l.ID
	}
	queryCtx, cancel = s.queryContext(ctx)
	marked, err := s.db.MarkMetricProcessed(queryCtx, ids)
	cancel()
	if err != nil {
		res.outcome = outcomeFailed
		return res, fmt.Errorf("failed to mark logs: %w", err)
	}
	res.marked = marked
	s.metrics.LogsMarked(marked)

	s.log.Info("Model %s: %d metric logs from %d logs", model.ID, res.metricLogs, len(logs))
	return res, nil
}

// computeMetric calculates, persists and publishes one metric
func (s *MetricJobService) computeMetric(ctx context.Context, model *models.Model, metric *models.ModelMetric, logs []models.ModelLog) error {
	result, err := s.registry.Calculate(ctx, model, metric, logs)
	if err != nil {
		s.metrics.MetricComputed(string(model.ProblemType), "error")
		return err
	}

	metricLog := &models.ModelMetricLog{
		ModelMetricID: metric.ID,
		ModelID:       model.ID,
		Value:         result.Value,
		Label:         metric.Name,
		Logs:          newest(logs, s.cfg.MaxSupportingLogs),
		Breakdown:     result.Breakdown,
	}
	if err := s.Publish(ctx, model, metric, metricLog); err != nil {
		s.metrics.MetricComputed(string(model.ProblemType), "error")
		return err
	}

	s.metrics.MetricComputed(string(model.ProblemType), "ok")
	return nil
}

// newest returns the last n logs of an oldest-first batch
func newest(logs []models.ModelLog, n int) []models.ModelLog {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}

// Publish persists a metric log and notifies the listeners.
// Listener failures are logged; the metric log is already durable.
func (s *MetricJobService) Publish(ctx context.Context, model *models.Model, metric *models.ModelMetric, metricLog *models.ModelMetricLog) error {
	if err := s.db.CreateModelMetricLog(ctx, metricLog); err != nil {
		return fmt.Errorf("failed to persist metric log: %w", err)
	}

	for _, l := range s.listeners {
		if err := l.OnMetricLog(ctx, model, metric, metricLog); err != nil {
			s.log.Error("Listener failed for metric %s of model %s: %v", metric.Name, model.ID, err)
		}
	}
	return nil
}

// RecordHealthCheck stores the outcome of an endpoint health check as a metric log
// labelled health_check and publishes it. A failed check (value 0) raises an error alert.
func (s *MetricJobService) RecordHealthCheck(ctx context.Context, modelID string, healthy bool) (*models.ModelMetricLog, error) {
	model, err := s.db.GetModel(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	metric := &models.ModelMetric{ModelID: model.ID, Name: calculator.HealthcheckMetricName}
	metrics, err := s.db.ListModelMetrics(ctx, model.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model metrics: %w", err)
	}
	for _, m := range metrics {
		if m.Name == calculator.HealthcheckMetricName {
			metric = m
			break
		}
	}

	value := 0.0
	if healthy {
		value = 1
	}
	metricLog := &models.ModelMetricLog{
		ModelMetricID: metric.ID,
		ModelID:       model.ID,
		Value:         value,
		Label:         models.HealthCheckLabel,
	}
	if err := s.Publish(ctx, model, metric, metricLog); err != nil {
		return nil, err
	}
	return metricLog, nil
}
