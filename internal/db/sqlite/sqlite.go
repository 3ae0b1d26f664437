package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/AI2HU/gauge/internal/db"
)

// SQLite implements the SQLDatabase interface for SQLite
type SQLite struct {
	db     *sqlx.DB
	config *db.Config
}

// New creates a new SQLite database instance
func New(config *db.Config) (*SQLite, error) {
	if config == nil || config.URI == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	return &SQLite{
		config: config,
	}, nil
}

// Connect establishes connection to SQLite and applies migrations
func (s *SQLite) Connect(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}

	if err := db.RunMigrations(s.db.DB); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Open establishes the connection without touching the schema
func (s *SQLite) Open(ctx context.Context) error {
	dbPath, err := resolvePath(s.config.URI)
	if err != nil {
		return err
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	// immediate transactions take the write lock up front so check-then-insert is atomic
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dbPath)
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database at path '%s': %w", dbPath, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping SQLite database at path '%s': %w", dbPath, err)
	}

	s.db = conn
	return nil
}

// Disconnect closes the SQLite connection
func (s *SQLite) Disconnect(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection
func (s *SQLite) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("not connected to database")
	}
	return s.db.PingContext(ctx)
}

// DB exposes the underlying connection for migration tooling
func (s *SQLite) DB() *sql.DB {
	if s.db == nil {
		return nil
	}
	return s.db.DB
}

// resolvePath expands ~ and makes the path absolute
func resolvePath(uri string) (string, error) {
	dbPath := strings.TrimPrefix(uri, "sqlite://")
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, dbPath[1:]), nil
	}
	if !filepath.IsAbs(dbPath) {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		return absPath, nil
	}
	return dbPath, nil
}

// utc normalizes timestamps so stored values compare correctly as text
func utc(t time.Time) time.Time {
	return t.UTC()
}

func toJSON(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(data), nil
}

func fromJSON(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, db.ErrNotFound)
	}
	return err
}
