package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

func newTestStore(t *testing.T) *MongoDB {
	t.Helper()

	uri := os.Getenv("GAUGE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GAUGE_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	m, err := New(&db.Config{Provider: "mongodb", URI: uri, Database: fmt.Sprintf("gauge_test_%d", time.Now().UnixNano())})
	require.NoError(t, err)
	require.NoError(t, m.Connect(ctx))
	t.Cleanup(func() {
		m.GetDatabase().Drop(ctx)
		m.Disconnect(ctx)
	})
	return m
}

func TestEligibleLogsAndMarking(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.CreateModelLog(ctx, &models.ModelLog{
			ModelID:   "model-1",
			Processed: i != 4,
			Actual:    map[string]interface{}{"modelClass": []string{"a"}, "class": "a"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, err := m.ListEligibleModelLogs(ctx, "model-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.True(t, logs[0].CreatedAt.Before(logs[3].CreatedAt))

	ids := []string{logs[0].ID, logs[1].ID}
	n, err := m.MarkMetricProcessed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.MarkMetricProcessed(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	logs, err = m.ListEligibleModelLogs(ctx, "model-1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	total, err := m.CountModelLogs(ctx, shared.LogFilter{ModelID: "model-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	recent, err := m.ListModelLogs(ctx, shared.LogFilter{ModelID: "model-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))
}

func TestMetricLogsAverage(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, v := range []float64{0.2, 0.4, 0.6} {
		require.NoError(t, m.CreateModelMetricLog(ctx, &models.ModelMetricLog{
			ModelMetricID: "metric-1",
			ModelID:       "model-1",
			Value:         v,
			Label:         "accuracy",
			CreatedAt:     now.Add(-time.Duration(3-i) * time.Hour),
		}))
	}
	deleted := now
	require.NoError(t, m.CreateModelMetricLog(ctx, &models.ModelMetricLog{
		ModelMetricID: "metric-1", Value: 100, CreatedAt: now, DeletedAt: &deleted,
	}))

	avg, count, err := m.AverageMetricValue(ctx, "metric-1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 0.4, avg, 1e-9)

	logs, err := m.ListModelMetricLogs(ctx, shared.MetricLogFilter{ModelMetricID: "metric-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 0.6, logs[0].Value)
}

func TestCompleteRuns(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	write := func(run, node string, offset time.Duration) {
		require.NoError(t, m.CreateAgentNodeLog(ctx, &models.AgentNodeLog{
			AgentLogID: run, AgentNodeID: node, Input: "in", Output: "out", CreatedAt: now.Add(offset),
		}))
	}
	write("run-1", "a", -3*time.Minute)
	write("run-1", "b", -2*time.Minute)
	write("run-2", "a", -time.Minute)
	write("run-3", "a", -30*time.Second)
	write("run-3", "b", -20*time.Second)
	write("run-3", "c", -10*time.Second)

	filter := shared.RunFilter{NodeIDs: []string{"a", "b"}}
	n, err := m.CountCompleteRuns(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ids, err := m.ListCompleteRunIDs(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-3", "run-1"}, ids)

	logs, err := m.ListRunNodeLogs(ctx, ids, filter)
	require.NoError(t, err)
	assert.Len(t, logs, 4)

	start := now.Add(-150 * time.Second)
	filter.StartTime = &start
	logs, err = m.ListRunNodeLogs(ctx, ids, filter)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
