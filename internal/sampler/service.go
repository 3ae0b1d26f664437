// Package sampler sizes log exports to a token budget.
//
// It probes the newest rows of a window, estimates the export's token cost and,
// when the estimate exceeds the budget, returns only the newest share of rows
// that fits. Agent-run exports only consider runs that touched every requested
// node and are sampled by run.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AI2HU/gauge/internal/cache"
	"github.com/AI2HU/gauge/internal/config"
	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/logger"
	"github.com/AI2HU/gauge/internal/models"
	"github.com/AI2HU/gauge/internal/shared"
	"github.com/AI2HU/gauge/internal/stats"
	"github.com/AI2HU/gauge/internal/telemetry"
)

// ErrInvalidRequest is returned for malformed sample requests
var ErrInvalidRequest = errors.New("invalid sample request")

// Service answers sample requests
type Service struct {
	db      db.Database
	loader  *cache.Loader
	ttl     time.Duration
	cfg     config.SamplerConfig
	metrics *telemetry.Metrics
	log     *logger.Logger
}

// NewService creates a sampler; a nil cache disables caching
func NewService(database db.Database, c cache.Cache, ttl time.Duration, cfg config.SamplerConfig, metrics *telemetry.Metrics) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if cfg.ModelTokenBudget <= 0 {
		cfg.ModelTokenBudget = DefaultModelTokenBudget
	}
	if cfg.AgentRunTokenBudget <= 0 {
		cfg.AgentRunTokenBudget = DefaultAgentRunTokenBudget
	}
	if cfg.ProbeSize <= 0 {
		cfg.ProbeSize = DefaultProbeSize
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	return &Service{
		db:      database,
		loader:  cache.NewLoader(c),
		ttl:     ttl,
		cfg:     cfg,
		metrics: metrics,
		log:     logger.Named("sampler"),
	}
}

// Validate checks a request before any store access
func Validate(req models.SampleRequest) error {
	switch req.Mode {
	case models.SampleModeModel:
		if req.ModelID == "" {
			return fmt.Errorf("%w: model_id is required", ErrInvalidRequest)
		}
	case models.SampleModeNodes, models.SampleModeAgentRun:
		if len(req.NodeIDs) == 0 {
			return fmt.Errorf("%w: node_ids is required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidRequest)
	}
	if req.EndDate.Before(req.StartDate) {
		return fmt.Errorf("%w: end_date is before start_date", ErrInvalidRequest)
	}
	if p := req.SamplePercentage; p != nil && (*p < 1 || *p > 100) {
		return fmt.Errorf("%w: sample_percentage must be between 1 and 100", ErrInvalidRequest)
	}
	for _, f := range req.Fields {
		if !knownFields[f] {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidRequest, f)
		}
	}
	return nil
}

// Sample returns the sized export for req, served from cache when possible
func (s *Service) Sample(ctx context.Context, req models.SampleRequest) (*models.SampleResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	key, err := cache.Key("sampler", req)
	if err != nil {
		return nil, err
	}

	resp, outcome, err := cache.Load(ctx, s.loader, key, s.ttl, func(ctx context.Context) (*models.SampleResponse, error) {
		return s.compute(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SamplerRequest(req.Mode, string(outcome), resp.Metadata.EstimatedTokens, resp.Metadata.NeedsSampling)
	s.log.Debug("Sample %s: %d of %d entries (%d%%, cache %s)", req.Mode, len(resp.Logs)+len(resp.Runs), resp.Metadata.TotalEntries, resp.Metadata.SamplePercentage, outcome)
	return resp, nil
}

func (s *Service) compute(ctx context.Context, req models.SampleRequest) (*models.SampleResponse, error) {
	switch req.Mode {
	case models.SampleModeModel:
		return s.sampleModel(ctx, req)
	case models.SampleModeNodes:
		return s.sampleNodes(ctx, req)
	default:
		return s.sampleAgentRuns(ctx, req)
	}
}

func metadata(p Plan) models.SampleMetadata {
	return models.SampleMetadata{
		TotalEntries:      p.Total,
		SamplePercentage:  p.Percentage,
		EstimatedTokens:   p.EstimatedTokens,
		NeedsSampling:     p.NeedsSampling,
		AvgTokensPerEntry: stats.Round(p.AvgTokens, 2),
	}
}

func (s *Service) rowTokens(input, output string, actual map[string]interface{}) int {
	text := Content(input) + Content(output)
	if len(actual) > 0 {
		text += ValueContent(actual)
	}
	return Tokens(text, s.cfg.CharsPerToken)
}

func average(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// query runs one store call under the configured per-query timeout
func query[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(queryCtx)
}

func (s *Service) sampleModel(ctx context.Context, req models.SampleRequest) (*models.SampleResponse, error) {
	timeout := s.cfg.QueryTimeout
	if _, err := query(ctx, timeout, func(ctx context.Context) (*models.Model, error) {
		return s.db.GetModel(ctx, req.ModelID)
	}); err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	filter := shared.LogFilter{ModelID: req.ModelID, StartTime: &req.StartDate, EndTime: &req.EndDate}
	total, err := query(ctx, timeout, func(ctx context.Context) (int, error) {
		return s.db.CountModelLogs(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count model logs: %w", err)
	}

	probeFilter := filter
	probeFilter.Limit = s.cfg.ProbeSize
	probe, err := query(ctx, timeout, func(ctx context.Context) ([]models.ModelLog, error) {
		return s.db.ListModelLogs(ctx, probeFilter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to probe model logs: %w", err)
	}

	tokens := 0
	for _, l := range probe {
		tokens += s.rowTokens(l.Input, l.Output, l.Actual)
	}
	plan := NewPlan(total, average(tokens, len(probe)), s.cfg.ModelTokenBudget, req.SamplePercentage)

	logs := probe
	if total > len(probe) {
		filter.Limit = plan.Limit
		logs, err = query(ctx, timeout, func(ctx context.Context) ([]models.ModelLog, error) {
			return s.db.ListModelLogs(ctx, filter)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list model logs: %w", err)
		}
	} else if plan.Limit > 0 && plan.Limit < len(logs) {
		logs = logs[:plan.Limit]
	}

	out := make([]map[string]interface{}, len(logs))
	for i, l := range logs {
		out[i] = project(modelLogFields(l), req.Fields)
	}
	return &models.SampleResponse{ModelID: req.ModelID, Logs: out, Metadata: metadata(plan)}, nil
}

func (s *Service) sampleNodes(ctx context.Context, req models.SampleRequest) (*models.SampleResponse, error) {
	timeout := s.cfg.QueryTimeout
	filter := shared.NodeLogFilter{NodeIDs: req.NodeIDs, StartTime: &req.StartDate, EndTime: &req.EndDate}
	total, err := query(ctx, timeout, func(ctx context.Context) (int, error) {
		return s.db.CountNodeLogs(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count node logs: %w", err)
	}

	probeFilter := filter
	probeFilter.Limit = s.cfg.ProbeSize
	probe, err := query(ctx, timeout, func(ctx context.Context) ([]models.AgentNodeLog, error) {
		return s.db.ListNodeLogs(ctx, probeFilter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to probe node logs: %w", err)
	}

	tokens := 0
	for _, l := range probe {
		tokens += s.rowTokens(l.Input, l.Output, l.Actual)
	}
	plan := NewPlan(total, average(tokens, len(probe)), s.cfg.ModelTokenBudget, req.SamplePercentage)

	logs := probe
	if total > len(probe) {
		filter.Limit = plan.Limit
		logs, err = query(ctx, timeout, func(ctx context.Context) ([]models.AgentNodeLog, error) {
			return s.db.ListNodeLogs(ctx, filter)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list node logs: %w", err)
		}
	} else if plan.Limit > 0 && plan.Limit < len(logs) {
		logs = logs[:plan.Limit]
	}

	out := make([]map[string]interface{}, len(logs))
	for i, l := range logs {
		out[i] = project(nodeLogFields(l), req.Fields)
	}
	return &models.SampleResponse{NodeIDs: req.NodeIDs, Logs: out, Metadata: metadata(plan)}, nil
}

func (s *Service) sampleAgentRuns(ctx context.Context, req models.SampleRequest) (*models.SampleResponse, error) {
	timeout := s.cfg.QueryTimeout
	filter := shared.RunFilter{NodeIDs: req.NodeIDs, StartTime: &req.StartDate, EndTime: &req.EndDate}
	total, err := query(ctx, timeout, func(ctx context.Context) (int, error) {
		return s.db.CountCompleteRuns(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count complete runs: %w", err)
	}

	probeFilter := filter
	probeFilter.Limit = s.cfg.ProbeSize
	probeIDs, err := query(ctx, timeout, func(ctx context.Context) ([]string, error) {
		return s.db.ListCompleteRunIDs(ctx, probeFilter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to probe runs: %w", err)
	}
	probeLogs, err := query(ctx, timeout, func(ctx context.Context) ([]models.AgentNodeLog, error) {
		return s.db.ListRunNodeLogs(ctx, probeIDs, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to probe run logs: %w", err)
	}

	tokens := 0
	for _, l := range probeLogs {
		tokens += s.rowTokens(l.Input, l.Output, l.Actual)
	}
	plan := NewPlan(total, average(tokens, len(probeIDs)), s.cfg.AgentRunTokenBudget, req.SamplePercentage)

	ids, logs := probeIDs, probeLogs
	if total > len(probeIDs) || (plan.Limit > 0 && plan.Limit < len(probeIDs)) {
		filter.Limit = plan.Limit
		if ids, err = query(ctx, timeout, func(ctx context.Context) ([]string, error) {
			return s.db.ListCompleteRunIDs(ctx, filter)
		}); err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if logs, err = query(ctx, timeout, func(ctx context.Context) ([]models.AgentNodeLog, error) {
			return s.db.ListRunNodeLogs(ctx, ids, filter)
		}); err != nil {
			return nil, fmt.Errorf("failed to list run logs: %w", err)
		}
	}

	byRun := make(map[string][]map[string]interface{}, len(ids))
	for _, l := range logs {
		byRun[l.AgentLogID] = append(byRun[l.AgentLogID], project(nodeLogFields(l), req.Fields))
	}

	runs := make([]models.SampleRun, 0, len(ids))
	for _, id := range ids {
		runs = append(runs, models.SampleRun{AgentLogID: id, Logs: byRun[id]})
	}

	meta := metadata(plan)
	meta.TotalLogsWithAllNodes = &total
	return &models.SampleResponse{
		NodeIDs:  req.NodeIDs,
		Logs:     []map[string]interface{}{},
		Runs:     runs,
		Metadata: meta,
	}, nil
}
