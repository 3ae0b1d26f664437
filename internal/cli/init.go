package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gauge configuration",
	Long:  `Interactive wizard to set up gauge configuration including databases, cache and metric job schedule.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("🚀 Welcome to Gauge - Metric Engine Setup")
	fmt.Println("=========================================")
	fmt.Println()

	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	if config.Exists(configPath) {
		fmt.Printf("Configuration file already exists at: %s\n", configPath)
		confirmed, err := promptYesNo(reader, "Do you want to overwrite it? (y/N): ")
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	fmt.Println("\n📊 SQL Database (models, metrics, alerts, ranges)")
	fmt.Println("--------------------------------------------------")
	var err error
	if cfg.SQLDatabase.Provider, err = promptOptional(reader, "Provider (sqlite/memory) [sqlite]: ", "sqlite"); err != nil {
		return err
	}
	if cfg.SQLDatabase.Provider == "sqlite" {
		if cfg.SQLDatabase.URI, err = promptOptional(reader, "SQLite path [gauge.db]: ", "gauge.db"); err != nil {
			return err
		}
	}

	fmt.Println("\n📦 NoSQL Database (inference, metric and agent logs)")
	fmt.Println("-----------------------------------------------------")
	if cfg.NoSQLDatabase.Provider, err = promptOptional(reader, "Provider (mongodb/memory) [mongodb]: ", "mongodb"); err != nil {
		return err
	}
	if cfg.NoSQLDatabase.Provider == "mongodb" {
		if cfg.NoSQLDatabase.URI, err = promptOptional(reader, "MongoDB URI [mongodb://localhost:27017]: ", "mongodb://localhost:27017"); err != nil {
			return err
		}
		if cfg.NoSQLDatabase.Database, err = promptOptional(reader, "Database name [gauge]: ", "gauge"); err != nil {
			return err
		}
	}

	fmt.Println("\n⚡ Cache")
	fmt.Println("--------")
	if cfg.Cache.Provider, err = promptOptional(reader, "Cache provider (memory/redis) [memory]: ", "memory"); err != nil {
		return err
	}
	if cfg.Cache.Provider == "redis" {
		if cfg.Cache.URL, err = promptRequired(reader, "Redis URL (redis://host:6379/0): "); err != nil {
			return err
		}
	}

	fmt.Println("\n⏰ Metric Job")
	fmt.Println("-------------")
	if cfg.Jobs.MetricsCron, err = promptOptional(reader, "Cron expression [*/15 * * * *]: ", cfg.Jobs.MetricsCron); err != nil {
		return err
	}
	batch, err := promptWithRetry(reader, fmt.Sprintf("Minimum batch size [%d]: ", cfg.Jobs.MinBatchSize), func(input string) (string, error) {
		if input == "" {
			return strconv.Itoa(cfg.Jobs.MinBatchSize), nil
		}
		if n, err := strconv.Atoi(input); err != nil || n <= 0 {
			return "", fmt.Errorf("batch size must be a positive integer")
		}
		return input, nil
	})
	if err != nil {
		return err
	}
	cfg.Jobs.MinBatchSize, _ = strconv.Atoi(batch)

	fmt.Println("\n🔌 Testing database connection...")
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := database.Connect(ctx); err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		fmt.Println("\nPlease check your database configuration and try again.")
		return err
	}
	defer database.Disconnect(ctx)

	if err := database.Ping(ctx); err != nil {
		fmt.Printf("❌ Failed to ping database: %v\n", err)
		return err
	}

	fmt.Println("✅ Database connection successful!")

	fmt.Println("\n💾 Saving configuration...")
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Configuration saved to: %s\n", configPath)

	fmt.Println("\n📋 Configuration Summary")
	fmt.Println("========================")
	fmt.Printf("SQL: %s (%s)\n", cfg.SQLDatabase.Provider, cfg.SQLDatabase.URI)
	fmt.Printf("NoSQL: %s (%s/%s)\n", cfg.NoSQLDatabase.Provider, cfg.NoSQLDatabase.URI, cfg.NoSQLDatabase.Database)
	fmt.Printf("Cache: %s\n", cfg.Cache.Provider)
	fmt.Printf("Metric job: %s (min batch %d)\n", cfg.Jobs.MetricsCron, cfg.Jobs.MinBatchSize)
	fmt.Println()
	fmt.Println("🎉 Setup complete! You can now use gauge.")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run the metric job once: gauge run")
	fmt.Println("  2. Start the scheduler: gauge scheduler start")
	fmt.Println("  3. Serve the API: gauge api")

	return nil
}
