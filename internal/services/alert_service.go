package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
	"github.com/AI2HU/gauge/internal/stats"
	"github.com/AI2HU/gauge/internal/telemetry"
)

// Alert engine defaults
const (
	DefaultDedupWindow   = 8 * time.Hour
	DefaultRecentLogs    = 10
	DefaultAverageWindow = 30 * 24 * time.Hour
)

// AlertService decides whether a new metric log raises an alert
type AlertService struct {
	db      db.Database
	cfg     config.AlertsConfig
	metrics *telemetry.Metrics
	locks   *keyedMutex
	now     func() time.Time
	log     *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(database db.Database, cfg config.AlertsConfig, metrics *telemetry.Metrics) *AlertService {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.RecentLogs <= 0 {
		cfg.RecentLogs = DefaultRecentLogs
	}
	if cfg.AverageWindow <= 0 {
		cfg.AverageWindow = DefaultAverageWindow
	}
	return &AlertService{
		db:      database,
		cfg:     cfg,
		metrics: metrics,
		locks:   newKeyedMutex(),
		now:     time.Now,
		log:     logger.Named("alerts"),
	}
}

// OnMetricLog routes health checks and threshold rules
func (s *AlertService) OnMetricLog(ctx context.Context, model *models.Model, metric *models.ModelMetric, metricLog *models.ModelMetricLog) error {
	if metricLog.IsHealthCheck() {
		return s.checkHealth(ctx, model, metricLog)
	}
	_, err := s.checkThresholds(ctx, model, metric, metricLog)
	return err
}

// checkHealth raises a critical error alert for a failed health check, without rules or dedup
func (s *AlertService) checkHealth(ctx context.Context, model *models.Model, metricLog *models.ModelMetricLog) error {
	if metricLog.Value != 0 {
		return nil
	}

	alert := &models.Alert{
		Type:      models.AlertKindError,
		Severity:  models.SeverityCritical,
		ModelID:   model.ID,
		Data:      models.AlertData{Value: metricLog.Value, Rule: models.HealthCheckLabel},
		CreatedAt: s.now(),
	}
	if err := s.db.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to create health alert: %w", err)
	}

	s.metrics.Alert(models.AlertKindError, "created")
	s.log.Warning("Health check failed for model %s, created alert %s", model.ID, alert.ID)
	return nil
}

// aggregate reduces recent metric values (newest first) for a rule type
func aggregate(alertType models.AlertType, values []float64) (float64, error) {
	switch alertType {
	case models.AlertTypeAverage:
		return stats.Mean(values), nil
	case models.AlertTypeMaxMin:
		return stats.Spread(values), nil
	case models.AlertTypeLast:
		return values[0], nil
	default:
		return 0, fmt.Errorf("unknown alert type: %s", alertType)
	}
}

// checkThresholds evaluates every rule of the metric and creates at most one alert
// per dedup window. It returns the created alert, or nil.
func (s *AlertService) checkThresholds(ctx context.Context, model *models.Model, metric *models.ModelMetric, metricLog *models.ModelMetricLog) (*models.Alert, error) {
	configs, err := s.db.ListAlertConfigurations(ctx, metric.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert configurations: %w", err)
	}
	if len(configs) == 0 {
		return nil, nil
	}

	recent, err := s.db.ListModelMetricLogs(ctx, shared.MetricLogFilter{
		ModelMetricID: metric.ID,
		Limit:         s.cfg.RecentLogs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent metric logs: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}

	values := make([]float64, len(recent))
	for i, l := range recent {
		values[i] = l.Value
	}

	var fired *models.AlertConfiguration
	var firedValue float64
	for _, cfg := range configs {
		value, err := aggregate(cfg.AlertType, values)
		if err != nil {
			s.log.Warning("Skipping alert rule %s: %v", cfg.ID, err)
			continue
		}
		triggered, err := cfg.ComparingOperator.Compare(value, cfg.AlertThreshold)
		if err != nil {
			s.log.Warning("Skipping alert rule %s: %v", cfg.ID, err)
			continue
		}
		if triggered {
			fired, firedValue = cfg, value
			break
		}
	}
	if fired == nil {
		return nil, nil
	}

	return s.createDeduped(ctx, model, metric, metricLog, fired, firedValue)
}

func (s *AlertService) createDeduped(ctx context.Context, model *models.Model, metric *models.ModelMetric, metricLog *models.ModelMetricLog, rule *models.AlertConfiguration, value float64) (*models.Alert, error) {
	unlock := s.locks.Lock(metric.ID)
	defer unlock()

	now := s.now()
	data := models.AlertData{
		Value:  value,
		Target: metric.Target(),
		Rule:   fmt.Sprintf("%s %s %g", rule.AlertType, rule.ComparingOperator, rule.AlertThreshold),
		Logs:   metricLog.Logs,
	}

	avg, n, err := s.db.AverageMetricValue(ctx, metric.ID, now.Add(-s.cfg.AverageWindow), now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trailing average: %w", err)
	}
	if n > 0 {
		data.AvgValue = &avg
	}

	metricID := metric.ID
	alert := &models.Alert{
		Type:          models.AlertKindMetric,
		Severity:      rule.AlertSeverity,
		ModelID:       model.ID,
		ModelMetricID: &metricID,
		Data:          data,
		CreatedAt:     now,
	}

	created, err := s.db.CreateAlertIfAbsent(ctx, alert, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	if !created {
		s.metrics.Alert(models.AlertKindMetric, "suppressed")
		s.log.Debug("Suppressed alert for metric %s inside dedup window", metric.ID)
		return nil, nil
	}

	s.metrics.Alert(models.AlertKindMetric, "created")
	s.log.Info("Created %s alert %s for metric %s (%s)", alert.Severity, alert.ID, metric.Name, data.Rule)
	return alert, nil
}

// keyedMutex serializes callers per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
