package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db/memory"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/services"
)

type scriptedRunner struct {
	errs  []error
	calls int
}

func (r *scriptedRunner) Run(ctx context.Context) (*models.RunSummary, error) {
	var err error
	if r.calls < len(r.errs) {
		err = r.errs[r.calls]
	}
	r.calls++
	return &models.RunSummary{ModelsProcessed: r.calls}, err
}

func newTestScheduler(t *testing.T, runner Runner) (*Scheduler, *memory.Memory, *[]time.Duration) {
	t.Helper()
	store := memory.New()
	s := New(store, runner, config.JobsConfig{MetricsCron: "*/5 * * * *"}, nil)

	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, store, &slept
}

func TestExecuteNowRetriesRetryableFailures(t *testing.T) {
	runner := &scriptedRunner{errs: []error{
		context.DeadlineExceeded,
		services.ErrIncompleteRun,
	}}
	s, store, slept := newTestScheduler(t, runner)

	summary, err := s.ExecuteNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
	assert.Equal(t, 3, summary.ModelsProcessed)
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, *slept)

	runs, err := store.ListJobRuns(context.Background(), MetricsJobName, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobStatusSucceeded, runs[0].Status)
	assert.Equal(t, 3, runs[0].Attempt)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestExecuteNowStopsOnNonRetryableError(t *testing.T) {
	runner := &scriptedRunner{errs: []error{context.Canceled}}
	s, store, slept := newTestScheduler(t, runner)

	_, err := s.ExecuteNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.Empty(t, *slept)

	runs, err := store.ListJobRuns(context.Background(), MetricsJobName, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobStatusFailed, runs[0].Status)
	assert.Equal(t, context.Canceled.Error(), runs[0].Error)
}

func TestExecuteNowGivesUpAfterMaxRetries(t *testing.T) {
	storeDown := errors.New("server selection timeout")
	runner := &scriptedRunner{errs: []error{storeDown, storeDown, storeDown, storeDown}}
	s, _, slept := newTestScheduler(t, runner)

	_, err := s.ExecuteNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storeDown)
	assert.Equal(t, DefaultMaxRetries, runner.calls)
	assert.Len(t, *slept, DefaultMaxRetries-1)

	history, err := s.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DefaultMaxRetries, history[0].Attempt)
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, &scriptedRunner{})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}

func TestStartRejectsInvalidCron(t *testing.T) {
	store := memory.New()
	s := New(store, &scriptedRunner{}, config.JobsConfig{MetricsCron: "not a cron"}, nil)
	assert.Error(t, s.Start(context.Background()))

	s = New(store, &scriptedRunner{}, config.JobsConfig{}, nil)
	assert.Error(t, s.Start(context.Background()))
}
