package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/cache"
	"github.com/AI2HU/gauge/internal/calculator"
	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/db/memory"
	"github.com/AI2HU/gauge/internal/db/mongodb"
	"github.com/AI2HU/gauge/internal/db/sqlite"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/sampler"
	"github.com/AI2HU/gauge/internal/scheduler"
	"github.com/AI2HU/gauge/internal/services"
	"github.com/AI2HU/gauge/internal/telemetry"
)

var (
	cfgFile        string
	cfg            *config.Config
	database       db.Database
	appCache       cache.Cache
	promRegistry   *prometheus.Registry
	metrics        *telemetry.Metrics
	jobService     *services.MetricJobService
	statsService   *services.StatsService
	samplerService *sampler.Service
	sched          *scheduler.Scheduler
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gauge",
	Short: "Metric, alerting and sampling engine for ML models",
	Long: `Gauge computes quality metrics over the inference logs of your models,
raises alerts when they cross configured thresholds, tracks weekly metric
ranges and exports token-budgeted log samples for LLM analysis.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip init for the init command itself
		if cmd.Name() == "init" {
			return nil
		}

		config.LoadDotEnv()

		if cfgFile == "" {
			cfgFile = config.GetConfigPath()
		}

		if !config.Exists(cfgFile) {
			return fmt.Errorf("configuration file not found. Run 'gauge init' to create one")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Init(logger.ParseLogLevel(cfg.LogLevel), os.Stdout)

		// migrate manages its own connection
		if cmd.Parent() != nil && cmd.Parent().Name() == "migrate" {
			return nil
		}

		database, err = openDatabase(cfg)
		if err != nil {
			return err
		}

		if err := database.Connect(cmd.Context()); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		return initServices(cfg)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appCache != nil {
			if err := appCache.Close(); err != nil {
				logger.Warning("Failed to close cache: %v", err)
			}
		}
		if database != nil {
			return database.Disconnect(context.Background())
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gauge/config.yaml)")

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sampleCmd)
}

func dbConfig(c config.DatabaseConfig) *db.Config {
	return &db.Config{
		Provider: c.Provider,
		URI:      c.URI,
		Database: c.Database,
		Options:  c.Options,
	}
}

// openDatabase builds the hybrid store; the memory provider serves both halves from one instance
func openDatabase(cfg *config.Config) (db.Database, error) {
	var mem *memory.Memory
	memoryStore := func() *memory.Memory {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}

	var sqlDB db.SQLDatabase
	switch cfg.SQLDatabase.Provider {
	case "sqlite":
		s, err := sqlite.New(dbConfig(cfg.SQLDatabase))
		if err != nil {
			return nil, fmt.Errorf("failed to create sql database: %w", err)
		}
		sqlDB = s
	case "memory":
		sqlDB = memoryStore()
	default:
		return nil, fmt.Errorf("unsupported sql database provider: %s", cfg.SQLDatabase.Provider)
	}

	var nosqlDB db.NoSQLDatabase
	switch cfg.NoSQLDatabase.Provider {
	case "mongodb":
		m, err := mongodb.New(dbConfig(cfg.NoSQLDatabase))
		if err != nil {
			return nil, fmt.Errorf("failed to create nosql database: %w", err)
		}
		nosqlDB = m
	case "memory":
		nosqlDB = memoryStore()
	default:
		return nil, fmt.Errorf("unsupported nosql database provider: %s", cfg.NoSQLDatabase.Provider)
	}

	return db.NewHybrid(sqlDB, nosqlDB), nil
}

// initServices wires the cache, collectors, metric job, listeners and scheduler
func initServices(cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	appCache, err = cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	promRegistry = prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics = telemetry.New(promRegistry)

	alertService := services.NewAlertService(database, cfg.Alerts, metrics)
	rangeService := services.NewMetricRangeService(database, loc, metrics)

	jobService = services.NewMetricJobService(database, calculator.NewRegistry(nil), cfg.Jobs, metrics, alertService, rangeService)
	statsService = services.NewStatsService(database, appCache, cfg.Cache.TTL)
	samplerService = sampler.NewService(database, appCache, cfg.Cache.TTL, cfg.Sampler, metrics)
	sched = scheduler.New(database, jobService, cfg.Jobs, metrics)

	return nil
}
