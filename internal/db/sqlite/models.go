package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AI2HU/gauge/internal/models"
)

type modelRow struct {
	ID          string    `db:"id"`
	CompanyID   string    `db:"company_id"`
	Name        string    `db:"name"`
	ProblemType string    `db:"problem_type"`
	Parameters  string    `db:"parameters"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r modelRow) toModel() (*models.Model, error) {
	m := &models.Model{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		Name:        r.Name,
		ProblemType: models.ProblemType(r.ProblemType),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := fromJSON(r.Parameters, &m.Parameters); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateModel creates a new model
func (s *SQLite) CreateModel(ctx context.Context, model *models.Model) error {
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	now := time.Now()
	model.CreatedAt = now
	model.UpdatedAt = now

	params, err := toJSON(model.Parameters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO models (id, company_id, name, problem_type, parameters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		model.ID, model.CompanyID, model.Name, string(model.ProblemType), params, utc(now), utc(now))
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	return nil
}

// GetModel retrieves a model by ID
func (s *SQLite) GetModel(ctx context.Context, id string) (*models.Model, error) {
	var row modelRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM models WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "model", id)
	}
	return row.toModel()
}

// ListModels lists all models
func (s *SQLite) ListModels(ctx context.Context) ([]*models.Model, error) {
	var rows []modelRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM models ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	out := make([]*models.Model, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type metricRow struct {
	ID         string    `db:"id"`
	ModelID    string    `db:"model_id"`
	Name       string    `db:"name"`
	Parameters string    `db:"parameters"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r metricRow) toMetric() (*models.ModelMetric, error) {
	m := &models.ModelMetric{
		ID:        r.ID,
		ModelID:   r.ModelID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
	if err := fromJSON(r.Parameters, &m.Parameters); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateModelMetric creates a new model metric
func (s *SQLite) CreateModelMetric(ctx context.Context, metric *models.ModelMetric) error {
	if metric.ID == "" {
		metric.ID = uuid.New().String()
	}
	metric.CreatedAt = time.Now()

	params, err := toJSON(metric.Parameters)
	if err != nil {
		return err
	}

	query := `INSERT INTO model_metrics (id, model_id, name, parameters, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, metric.ID, metric.ModelID, metric.Name, params, utc(metric.CreatedAt)); err != nil {
		return fmt.Errorf("failed to create model metric: %w", err)
	}
	return nil
}

// GetModelMetric retrieves a model metric by ID
func (s *SQLite) GetModelMetric(ctx context.Context, id string) (*models.ModelMetric, error) {
	var row metricRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM model_metrics WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "model metric", id)
	}
	return row.toMetric()
}

// ListModelMetrics lists the metrics configured for a model
func (s *SQLite) ListModelMetrics(ctx context.Context, modelID string) ([]*models.ModelMetric, error) {
	var rows []metricRow
	query := `SELECT * FROM model_metrics WHERE model_id = ? ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &rows, query, modelID); err != nil {
		return nil, fmt.Errorf("failed to list model metrics: %w", err)
	}

	out := make([]*models.ModelMetric, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMetric()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateAgentNode creates a new agent node
func (s *SQLite) CreateAgentNode(ctx context.Context, node *models.AgentNode) error {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	node.CreatedAt = time.Now()

	query := `
		INSERT INTO agent_nodes (id, agent_id, name, type, model_id, created_at)
		VALUES (:id, :agent_id, :name, :type, :model_id, :created_at)`
	row := *node
	row.CreatedAt = utc(node.CreatedAt)
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create agent node: %w", err)
	}
	return nil
}

// ListAgentNodes returns the nodes with the given IDs
func (s *SQLite) ListAgentNodes(ctx context.Context, ids []string) ([]*models.AgentNode, error) {
	if len(ids) == 0 {
		return []*models.AgentNode{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM agent_nodes WHERE id IN (?) ORDER BY created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent node query: %w", err)
	}

	var nodes []*models.AgentNode
	if err := s.db.SelectContext(ctx, &nodes, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list agent nodes: %w", err)
	}
	return nodes, nil
}
