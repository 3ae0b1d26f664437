package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Config selects and addresses one database backend
type Config struct {
	Provider string
	URI      string
	Database string
	Options  map[string]string
}

// Database defines the combined interface for both SQL and NoSQL database operations
type Database interface {
	SQLDatabase
	NoSQLDatabase
}

// Hybrid routes configuration and alert state to the SQL store and logs to the NoSQL store
type Hybrid struct {
	SQLDatabase
	NoSQLDatabase
}

// NewHybrid composes a SQL and a NoSQL store into one Database
func NewHybrid(sql SQLDatabase, nosql NoSQLDatabase) *Hybrid {
	return &Hybrid{SQLDatabase: sql, NoSQLDatabase: nosql}
}

// Connect connects both stores
func (h *Hybrid) Connect(ctx context.Context) error {
	if err := h.SQLDatabase.Connect(ctx); err != nil {
		return err
	}
	if h.sameStore() {
		return nil
	}
	return h.NoSQLDatabase.Connect(ctx)
}

// Disconnect disconnects both stores
func (h *Hybrid) Disconnect(ctx context.Context) error {
	sqlErr := h.SQLDatabase.Disconnect(ctx)
	if h.sameStore() {
		return sqlErr
	}
	return errors.Join(sqlErr, h.NoSQLDatabase.Disconnect(ctx))
}

// Ping checks both stores
func (h *Hybrid) Ping(ctx context.Context) error {
	if err := h.SQLDatabase.Ping(ctx); err != nil {
		return err
	}
	if h.sameStore() {
		return nil
	}
	return h.NoSQLDatabase.Ping(ctx)
}

// sameStore reports whether one backend serves both halves, as the memory store does
func (h *Hybrid) sameStore() bool {
	return interface{}(h.SQLDatabase) == interface{}(h.NoSQLDatabase)
}
