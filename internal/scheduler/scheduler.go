package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/services"
	"github.com/AI2HU/gauge/internal/telemetry"
)

// Retry configuration constants
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second
	DefaultRunTimeout = 10 * time.Minute
)

// MetricsJobName identifies metric job runs in the job_runs table
const MetricsJobName = "metrics"

// Runner is one pass of the metric job
type Runner interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

// Scheduler runs the metric job on a cron schedule
type Scheduler struct {
	db      db.SQLDatabase
	runner  Runner
	cfg     config.JobsConfig
	metrics *telemetry.Metrics
	cron    *cron.Cron
	running bool
	mu      sync.RWMutex
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a new scheduler
func New(database db.SQLDatabase, runner Runner, cfg config.JobsConfig, metrics *telemetry.Metrics) *Scheduler {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}

	log := logger.Named("scheduler")
	cronLog := logger.CronLogger{L: logger.Named("cron")}
	return &Scheduler{
		db:      database,
		runner:  runner,
		cfg:     cfg,
		metrics: metrics,
		cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		log:     log,
		sleep:   sleepContext,
	}
}

// Start registers the metric job and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.cfg.MetricsCron == "" {
		return fmt.Errorf("no metrics cron expression configured")
	}

	_, err := s.cron.AddFunc(s.cfg.MetricsCron, func() {
		if _, err := s.ExecuteNow(ctx); err != nil {
			s.log.Error("Scheduled metric job failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.log.Info("Scheduler started with cron expression: %s", s.cfg.MetricsCron)
	return nil
}

// Stop stops the cron loop and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false

	s.log.Info("Scheduler stopped")
}

// ExecuteNow runs the metric job immediately with retries and records the run
func (s *Scheduler) ExecuteNow(ctx context.Context) (*models.RunSummary, error) {
	run := &models.JobRun{
		Job:       MetricsJobName,
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.db.CreateJobRun(ctx, run); err != nil {
		s.log.Warning("Failed to record job run: %v", err)
		run = nil
	}

	summary, attempts, err := s.runWithRetry(ctx)

	status := models.JobStatusSucceeded
	if err != nil {
		status = models.JobStatusFailed
	}
	s.metrics.JobRun(MetricsJobName, status)

	if run != nil {
		finished := time.Now()
		run.Status = status
		run.Attempt = attempts
		run.FinishedAt = &finished
		if err != nil {
			run.Error = err.Error()
		}
		if uerr := s.db.UpdateJobRun(context.WithoutCancel(ctx), run); uerr != nil {
			s.log.Warning("Failed to update job run %s: %v", run.ID, uerr)
		}
	}

	return summary, err
}

// runWithRetry runs the job under the run timeout, retrying retryable failures
func (s *Scheduler) runWithRetry(ctx context.Context) (*models.RunSummary, int, error) {
	var lastErr error
	var summary *models.RunSummary

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		s.log.Debug("Metric job attempt %d/%d", attempt, s.cfg.MaxRetries)

		runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
		summary, lastErr = s.runner.Run(runCtx)
		cancel()

		if lastErr == nil {
			if attempt > 1 {
				s.log.Info("Metric job succeeded on attempt %d after %d previous failures", attempt, attempt-1)
			}
			return summary, attempt, nil
		}

		if !services.IsRetryable(lastErr) || ctx.Err() != nil {
			return summary, attempt, lastErr
		}

		s.log.Warning("Attempt %d/%d of metric job failed: %v", attempt, s.cfg.MaxRetries, lastErr)

		if attempt < s.cfg.MaxRetries {
			s.log.Info("Waiting %v before retry attempt %d...", s.cfg.RetryDelay, attempt+1)
			if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
				return summary, attempt, err
			}
		}
	}

	s.log.Error("All %d attempts of metric job failed. Last error: %v", s.cfg.MaxRetries, lastErr)
	return summary, s.cfg.MaxRetries, fmt.Errorf("failed after %d attempts, last error: %w", s.cfg.MaxRetries, lastErr)
}

// History returns the most recent metric job runs
func (s *Scheduler) History(ctx context.Context, limit int) ([]*models.JobRun, error) {
	return s.db.ListJobRuns(ctx, MetricsJobName, limit)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
