package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/models"
)

func TestOpenDatabaseMemoryServesBothHalves(t *testing.T) {
	c := config.DefaultConfig()
	c.SQLDatabase.Provider = "memory"
	c.NoSQLDatabase.Provider = "memory"

	database, err := openDatabase(c)
	require.NoError(t, err)

	hybrid, ok := database.(*db.Hybrid)
	require.True(t, ok)
	assert.Same(t, hybrid.SQLDatabase, hybrid.NoSQLDatabase)

	ctx := context.Background()
	require.NoError(t, database.Connect(ctx))
	defer database.Disconnect(ctx)

	model := &models.Model{Name: "m", ProblemType: models.ProblemBinaryClass}
	require.NoError(t, database.CreateModel(ctx, model))
	require.NoError(t, database.CreateModelLog(ctx, &models.ModelLog{ModelID: model.ID, Processed: true}))

	logs, err := database.ListEligibleModelLogs(ctx, model.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOpenDatabaseRejectsUnknownProviders(t *testing.T) {
	c := config.DefaultConfig()
	c.SQLDatabase.Provider = "postgres"
	_, err := openDatabase(c)
	assert.ErrorContains(t, err, "unsupported sql database provider")

	c = config.DefaultConfig()
	c.SQLDatabase.Provider = "memory"
	c.NoSQLDatabase.Provider = "cassandra"
	_, err = openDatabase(c)
	assert.ErrorContains(t, err, "unsupported nosql database provider")
}

func TestInitServicesWiresEverything(t *testing.T) {
	c := config.DefaultConfig()
	c.SQLDatabase.Provider = "memory"
	c.NoSQLDatabase.Provider = "memory"

	var err error
	database, err = openDatabase(c)
	require.NoError(t, err)
	defer func() { database = nil }()

	require.NoError(t, initServices(c))
	assert.NotNil(t, jobService)
	assert.NotNil(t, statsService)
	assert.NotNil(t, samplerService)
	assert.NotNil(t, sched)
	assert.NotNil(t, promRegistry)

	summary, err := sched.ExecuteNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ModelsProcessed)

	c.Timezone = "Not/AZone"
	assert.Error(t, initServices(c))
}

func TestPromptYesNo(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\ny\n", true},
	}

	for _, tt := range tests {
		reader := bufio.NewReader(strings.NewReader(tt.input))
		got, err := promptYesNo(reader, "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestPromptOptionalAndRequired(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("\n"))
	got, err := promptOptional(reader, "", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", got)

	reader = bufio.NewReader(strings.NewReader("\nredis://localhost:6379/0\n"))
	got, err = promptRequired(reader, "")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", got)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "8990", firstNonEmpty("", "8990", "80"))
	assert.Equal(t, "flag", firstNonEmpty("flag", "config"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-03-10T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Day())

	_, err = parseDate("10/03/2024")
	assert.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Contains(t, FormatSeverity(models.SeverityCritical), bgRed)
	assert.Contains(t, FormatSeverity("warning"), bgYellow)
	assert.Contains(t, FormatMetric(0.5), "0.5000")
	assert.Contains(t, formatStatus(models.JobStatusFailed), ErrorStyle)
	assert.Contains(t, formatStatus(models.JobStatusSucceeded), SuccessStyle)
	assert.Contains(t, formatRangeValues(map[string]float64{"b": 2, "a": 1}), "a")
	assert.Less(t,
		strings.Index(formatRangeValues(map[string]float64{"b": 2, "a": 1}), "a"),
		strings.Index(formatRangeValues(map[string]float64{"b": 2, "a": 1}), "b"))
}
