package sampler

import (
	"github.com/AI2HU/gauge/internal/models"
)

var knownFields = map[string]bool{
	"id":            true,
	"model_id":      true,
	"agent_log_id":  true,
	"agent_node_id": true,
	"input":         true,
	"output":        true,
	"actual":        true,
	"created_at":    true,
}

func modelLogFields(l models.ModelLog) map[string]interface{} {
	return map[string]interface{}{
		"id":         l.ID,
		"model_id":   l.ModelID,
		"input":      l.Input,
		"output":     l.Output,
		"actual":     l.Actual,
		"created_at": l.CreatedAt,
	}
}

func nodeLogFields(l models.AgentNodeLog) map[string]interface{} {
	return map[string]interface{}{
		"id":            l.ID,
		"agent_log_id":  l.AgentLogID,
		"agent_node_id": l.AgentNodeID,
		"input":         l.Input,
		"output":        l.Output,
		"actual":        l.Actual,
		"created_at":    l.CreatedAt,
	}
}

// project keeps the requested fields of row; no fields keeps the whole row
func project(row map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		return row
	}

	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}
