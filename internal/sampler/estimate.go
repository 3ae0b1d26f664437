package sampler

import (
	"math"
	"time"
)

// Sizing defaults
const (
	DefaultModelTokenBudget    = 300000
	DefaultAgentRunTokenBudget = 50000
	DefaultProbeSize           = 10
	DefaultCharsPerToken       = 4
	DefaultQueryTimeout        = 30 * time.Second
)

// Plan is the sizing decision for one export
type Plan struct {
	Total           int
	AvgTokens       float64
	EstimatedTokens int
	NeedsSampling   bool
	Percentage      int
	// Limit is the number of newest entries to return; 0 means no limit
	Limit int
}

// NewPlan sizes an export of total entries averaging avgTokens each against budget.
// An explicit percentage overrides the computed one.
func NewPlan(total int, avgTokens float64, budget int, explicit *int) Plan {
	estimated := int(math.Round(avgTokens * float64(total)))
	p := Plan{
		Total:           total,
		AvgTokens:       avgTokens,
		EstimatedTokens: estimated,
		NeedsSampling:   estimated > budget,
		Percentage:      100,
	}

	switch {
	case explicit != nil:
		p.Percentage = clampPercentage(*explicit)
	case p.NeedsSampling:
		p.Percentage = clampPercentage(int(int64(budget) * 100 / int64(estimated)))
	}

	if p.Percentage < 100 {
		p.Limit = (total*p.Percentage + 99) / 100
	}
	return p
}

func clampPercentage(pct int) int {
	if pct < 1 {
		return 1
	}
	if pct > 100 {
		return 100
	}
	return pct
}
