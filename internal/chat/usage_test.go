package chat

import (
	"testing"

	"github.com/lifecoachhq/coachapi/internal/ai"
)

func TestUsageStatsMerge_Accumulates(t *testing.T) {
	var s UsageStats

	s.Merge(ai.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120, InputCost: 0.001, OutputCost: 0.002, TotalCost: 0.003})
	s.Merge(ai.Usage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60, InputCost: 0.0005, OutputCost: 0.001, TotalCost: 0.0015})

	if s.InputTokens != 150 || s.OutputTokens != 30 || s.TotalTokens != 180 {
		t.Fatalf("token totals wrong: %+v", s)
	}
	if s.TotalCost != 0.0045 {
		t.Fatalf("total cost wrong: %v", s.TotalCost)
	}
}

func TestUsageStatsMerge_ZeroDeltaIsNoop(t *testing.T) {
	s := UsageStats{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, TotalCost: 0.01}
	before := s

	s.Merge(ai.Usage{})

	if s != before {
		t.Fatalf("zero delta changed stats: %+v != %+v", s, before)
	}
}

func TestUsageStatsMerge_PartialDelta(t *testing.T) {
	var s UsageStats

	// A provider that reports tokens but no pricing data: counters grow,
	// costs stay put.
	s.Merge(ai.Usage{InputTokens: 40, OutputTokens: 8, TotalTokens: 48})

	if s.TotalTokens != 48 {
		t.Fatalf("total tokens = %d, want 48", s.TotalTokens)
	}
	if s.TotalCost != 0 {
		t.Fatalf("total cost = %v, want 0", s.TotalCost)
	}
}

func TestRound5(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.000014, 0.00001},
		{0.000016, 0.00002},
		{1.234567, 1.23457},
		{0, 0},
	}
	for _, c := range cases {
		if got := round5(c.in); got != c.want {
			t.Fatalf("round5(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
