package chat

import (
	"math"

	"github.com/lifecoachhq/coachapi/internal/ai"
)

// UsageStats is a running total of generation spend. Every field only
// ever grows; Merge treats absent counters in the delta (zero values)
// as nothing consumed. Totals are kept at full precision - rounding
// happens once, at the cost-summary boundary.
type UsageStats struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
}

// Merge folds one generation's usage delta into the running total.
func (s *UsageStats) Merge(d ai.Usage) {
	s.InputTokens += d.InputTokens
	s.OutputTokens += d.OutputTokens
	s.TotalTokens += d.TotalTokens
	s.InputCost += d.InputCost
	s.OutputCost += d.OutputCost
	s.TotalCost += d.TotalCost
}

// CostSummary is a pure projection over the three session accumulators;
// it is recomputed on demand and never stored.
type CostSummary struct {
	QueryCost         float64 `json:"query_cost"`
	NonQueryCost      float64 `json:"non_query_cost"`
	VisualizationCost float64 `json:"visualization_cost"`
	TotalCost         float64 `json:"total_cost"`
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
