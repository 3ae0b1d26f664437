package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
)

// CreateAlertConfiguration creates a new alert rule
func (s *SQLite) CreateAlertConfiguration(ctx context.Context, cfg *models.AlertConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	cfg.CreatedAt = time.Now()

	query := `
		INSERT INTO alert_configurations
			(id, company_id, model_metric_id, alert_type, comparing_operator, alert_threshold, alert_severity, created_at)
		VALUES
			(:id, :company_id, :model_metric_id, :alert_type, :comparing_operator, :alert_threshold, :alert_severity, :created_at)`
	row := *cfg
	row.CreatedAt = utc(cfg.CreatedAt)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create alert configuration: %w", err)
	}
	return nil
}

// ListAlertConfigurations lists the rules bound to a model metric
func (s *SQLite) ListAlertConfigurations(ctx context.Context, modelMetricID string) ([]*models.AlertConfiguration, error) {
	var cfgs []*models.AlertConfiguration
	query := `SELECT * FROM alert_configurations WHERE model_metric_id = ? ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &cfgs, query, modelMetricID); err != nil {
		return nil, fmt.Errorf("failed to list alert configurations: %w", err)
	}
	return cfgs, nil
}

type alertRow struct {
	ID            string         `db:"id"`
	Type          string         `db:"type"`
	Severity      string         `db:"severity"`
	ModelID       string         `db:"model_id"`
	ModelMetricID sql.NullString `db:"model_metric_id"`
	Data          string         `db:"data"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r alertRow) toAlert() (*models.Alert, error) {
	a := &models.Alert{
		ID:        r.ID,
		Type:      r.Type,
		Severity:  r.Severity,
		ModelID:   r.ModelID,
		CreatedAt: r.CreatedAt,
	}
	if r.ModelMetricID.Valid {
		id := r.ModelMetricID.String
		a.ModelMetricID = &id
	}
	if err := fromJSON(r.Data, &a.Data); err != nil {
		return nil, err
	}
	return a, nil
}

func prepareAlert(alert *models.Alert) ([]interface{}, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	data, err := toJSON(alert.Data)
	if err != nil {
		return nil, err
	}

	var metricID sql.NullString
	if alert.ModelMetricID != nil {
		metricID = sql.NullString{String: *alert.ModelMetricID, Valid: true}
	}

	return []interface{}{
		alert.ID, alert.Type, alert.Severity, alert.ModelID, metricID, data, utc(alert.CreatedAt),
	}, nil
}

const insertAlert = `
	INSERT INTO alerts (id, type, severity, model_id, model_metric_id, data, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateAlert creates an alert unconditionally
func (s *SQLite) CreateAlert(ctx context.Context, alert *models.Alert) error {
	args, err := prepareAlert(alert)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertAlert, args...); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// CreateAlertIfAbsent creates alert unless one exists for its model metric since the given time.
// The check and the insert share one immediate transaction.
func (s *SQLite) CreateAlertIfAbsent(ctx context.Context, alert *models.Alert, since time.Time) (bool, error) {
	if alert.ModelMetricID == nil {
		return false, fmt.Errorf("alert dedup requires a model metric id")
	}

	args, err := prepareAlert(alert)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	query := `SELECT COUNT(*) FROM alerts WHERE model_metric_id = ? AND created_at >= ?`
	if err := tx.GetContext(ctx, &existing, query, *alert.ModelMetricID, utc(since)); err != nil {
		return false, fmt.Errorf("failed to check recent alerts: %w", err)
	}
	if existing > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, insertAlert, args...); err != nil {
		return false, fmt.Errorf("failed to create alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit alert: %w", err)
	}
	return true, nil
}

// ListAlerts lists alerts newest first
func (s *SQLite) ListAlerts(ctx context.Context, filter shared.AlertFilter) ([]*models.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ModelID != "" {
		where = append(where, "model_id = ?")
		args = append(args, filter.ModelID)
	}
	if filter.ModelMetricID != "" {
		where = append(where, "model_metric_id = ?")
		args = append(args, filter.ModelMetricID)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, utc(*filter.Since))
	}

	query := "SELECT * FROM alerts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []alertRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	out := make([]*models.Alert, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAlert()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
