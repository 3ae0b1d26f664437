package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AI2HU/gauge/internal/models"
)

type rangeRow struct {
	ID         string    `db:"id"`
	CompanyID  string    `db:"company_id"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	RangeType  string    `db:"range_type"`
	StartDate  time.Time `db:"start_date"`
	EndDate    time.Time `db:"end_date"`
	Metrics    string    `db:"metrics"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r rangeRow) toRange() (*models.MetricRange, error) {
	mr := &models.MetricRange{
		ID:         r.ID,
		CompanyID:  r.CompanyID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		RangeType:  r.RangeType,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Metrics:    map[string]float64{},
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if err := fromJSON(r.Metrics, &mr.Metrics); err != nil {
		return nil, err
	}
	return mr, nil
}

const selectRangeByKey = `
	SELECT * FROM metric_ranges
	WHERE company_id = ? AND entity_type = ? AND entity_id = ? AND range_type = ? AND start_date = ? AND end_date = ?`

func keyArgs(key models.MetricRangeKey) []interface{} {
	return []interface{}{key.CompanyID, key.EntityType, key.EntityID, key.RangeType, utc(key.StartDate), utc(key.EndDate)}
}

// UpsertMetricRange sets metrics[label] on the row for key inside one transaction
func (s *SQLite) UpsertMetricRange(ctx context.Context, key models.MetricRangeKey, label string, value float64) (*models.MetricRange, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := utc(time.Now())
	insert := `
		INSERT INTO metric_ranges
			(id, company_id, entity_type, entity_id, range_type, start_date, end_date, metrics, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)
		ON CONFLICT (company_id, entity_type, entity_id, range_type, start_date, end_date) DO NOTHING`
	args := append([]interface{}{uuid.New().String()}, keyArgs(key)...)
	args = append(args, now, now)
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return nil, fmt.Errorf("failed to create metric range: %w", err)
	}

	var row rangeRow
	if err := tx.GetContext(ctx, &row, selectRangeByKey, keyArgs(key)...); err != nil {
		return nil, fmt.Errorf("failed to load metric range: %w", err)
	}

	mr, err := row.toRange()
	if err != nil {
		return nil, err
	}
	mr.Metrics[label] = value
	mr.UpdatedAt = now

	metrics, err := toJSON(mr.Metrics)
	if err != nil {
		return nil, err
	}
	update := `UPDATE metric_ranges SET metrics = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, metrics, now, mr.ID); err != nil {
		return nil, fmt.Errorf("failed to update metric range: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit metric range: %w", err)
	}
	return mr, nil
}

// GetMetricRange retrieves the range row for key
func (s *SQLite) GetMetricRange(ctx context.Context, key models.MetricRangeKey) (*models.MetricRange, error) {
	var row rangeRow
	if err := s.db.GetContext(ctx, &row, selectRangeByKey, keyArgs(key)...); err != nil {
		return nil, notFound(err, "metric range", key.EntityID)
	}
	return row.toRange()
}

// ListMetricRanges lists the ranges of one entity, newest week first
func (s *SQLite) ListMetricRanges(ctx context.Context, entityType, entityID string) ([]*models.MetricRange, error) {
	var rows []rangeRow
	query := `SELECT * FROM metric_ranges WHERE entity_type = ? AND entity_id = ? ORDER BY start_date DESC`
	if err := s.db.SelectContext(ctx, &rows, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list metric ranges: %w", err)
	}

	out := make([]*models.MetricRange, 0, len(rows))
	for _, r := range rows {
		mr, err := r.toRange()
		if err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, nil
}
