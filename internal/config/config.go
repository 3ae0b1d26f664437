package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	SQLDatabase   DatabaseConfig `yaml:"sql_database"`   // SQLite for models, metrics, alerts and ranges
	NoSQLDatabase DatabaseConfig `yaml:"nosql_database"` // MongoDB for inference, metric and agent logs
	Cache         CacheConfig    `yaml:"cache"`
	Jobs          JobsConfig     `yaml:"jobs"`
	Alerts        AlertsConfig   `yaml:"alerts"`
	Sampler       SamplerConfig  `yaml:"sampler"`
	API           APIConfig      `yaml:"api"`
	LogLevel      string         `yaml:"log_level"`
	Timezone      string         `yaml:"timezone,omitempty"` // clock used for weekly ranges, defaults to local
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Provider string            `yaml:"provider"` // sqlite, mongodb, memory
	URI      string            `yaml:"uri"`
	Database string            `yaml:"database"`
	Options  map[string]string `yaml:"options,omitempty"`
}

// CacheConfig selects the cache backend used by read paths
type CacheConfig struct {
	Provider string        `yaml:"provider"` // redis, memory
	URL      string        `yaml:"url,omitempty"`
	TTL      time.Duration `yaml:"ttl"`
}

// JobsConfig controls the metric job runner
type JobsConfig struct {
	MetricsCron       string        `yaml:"metrics_cron"`
	MinBatchSize      int           `yaml:"min_batch_size"`
	MaxBatchSize      int           `yaml:"max_batch_size"`      // 0 takes every eligible log
	MaxSupportingLogs int           `yaml:"max_supporting_logs"` // newest batch logs kept on a metric log
	Workers           int           `yaml:"workers"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

// AlertsConfig controls the alert engine windows
type AlertsConfig struct {
	DedupWindow   time.Duration `yaml:"dedup_window"`
	RecentLogs    int           `yaml:"recent_logs"`
	AverageWindow time.Duration `yaml:"average_window"`
}

// SamplerConfig controls export sizing
type SamplerConfig struct {
	ModelTokenBudget    int           `yaml:"model_token_budget"`
	AgentRunTokenBudget int           `yaml:"agent_run_token_budget"`
	ProbeSize           int           `yaml:"probe_size"`
	CharsPerToken       int           `yaml:"chars_per_token"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
}

// APIConfig configures the HTTP server
type APIConfig struct {
	Host            string  `yaml:"host"`
	Port            string  `yaml:"port"`
	CORSOrigin      string  `yaml:"cors_origin,omitempty"`
	ExportRateLimit float64 `yaml:"export_rate_limit"` // requests per second for export endpoints
	ExportBurst     int     `yaml:"export_burst"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		SQLDatabase: DatabaseConfig{
			Provider: "sqlite",
			URI:      "gauge.db",
			Database: "gauge",
		},
		NoSQLDatabase: DatabaseConfig{
			Provider: "mongodb",
			URI:      "mongodb://localhost:27017",
			Database: "gauge",
		},
		Cache: CacheConfig{
			Provider: "memory",
			TTL:      time.Hour,
		},
		Jobs: JobsConfig{
			MetricsCron:       "*/15 * * * *",
			MinBatchSize:      30,
			MaxSupportingLogs: 50,
			Workers:           4,
			QueryTimeout:      30 * time.Second,
			RunTimeout:        10 * time.Minute,
			MaxRetries:        3,
			RetryDelay:        30 * time.Second,
		},
		Alerts: AlertsConfig{
			DedupWindow:   8 * time.Hour,
			RecentLogs:    10,
			AverageWindow: 30 * 24 * time.Hour,
		},
		Sampler: SamplerConfig{
			ModelTokenBudget:    300000,
			AgentRunTokenBudget: 50000,
			ProbeSize:           10,
			CharsPerToken:       4,
			QueryTimeout:        30 * time.Second,
		},
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            "8990",
			ExportRateLimit: 5,
			ExportBurst:     10,
		},
		LogLevel: "INFO",
	}
}

// Load loads configuration from file. Missing sections keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// applyEnv overrides file values with GAUGE_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("GAUGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GAUGE_SQL_URI"); v != "" {
		c.SQLDatabase.URI = v
	}
	if v := os.Getenv("GAUGE_MONGO_URI"); v != "" {
		c.NoSQLDatabase.URI = v
	}
	if v := os.Getenv("GAUGE_REDIS_URL"); v != "" {
		c.Cache.Provider = "redis"
		c.Cache.URL = v
	}
}

// Location returns the clock used for calendar windows
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads a .env file from the working directory if one exists
func LoadDotEnv() {
	_ = godotenv.Load()
}

// GetConfigPath returns the config file path, honouring GAUGE_CONFIG_PATH
func GetConfigPath() string {
	if envPath := os.Getenv("GAUGE_CONFIG_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gauge/config.yaml"
	}
	return filepath.Join(home, ".gauge", "config.yaml")
}

// Exists checks if config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
