package ai

import "github.com/shopspring/decimal"

// Per-million-token USD prices. Unknown models price at zero so token
// counts still accumulate even when no rate is configured.
type modelRate struct {
	input  decimal.Decimal
	output decimal.Decimal
}

var modelRates = map[string]modelRate{
	"gpt-4o":            {input: decimal.NewFromFloat(2.50), output: decimal.NewFromFloat(10.00)},
	"gpt-4o-2024-08-06": {input: decimal.NewFromFloat(2.50), output: decimal.NewFromFloat(10.00)},
	"gpt-4o-mini":       {input: decimal.NewFromFloat(0.15), output: decimal.NewFromFloat(0.60)},
	"gpt-4.1-nano":      {input: decimal.NewFromFloat(0.10), output: decimal.NewFromFloat(0.40)},
	"o1-mini":           {input: decimal.NewFromFloat(1.10), output: decimal.NewFromFloat(4.40)},
	"o1-preview":        {input: decimal.NewFromFloat(15.00), output: decimal.NewFromFloat(60.00)},
}

var tokensPerUnit = decimal.NewFromInt(1_000_000)

// PriceUsage builds a Usage delta for a completion: token counts as
// reported by the provider, costs from the per-model rate table.
func PriceUsage(model string, inputTokens, outputTokens int) Usage {
	u := Usage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
	}
	rate, ok := modelRates[model]
	if !ok {
		return u
	}
	in := rate.input.Mul(decimal.NewFromInt(int64(inputTokens))).Div(tokensPerUnit)
	out := rate.output.Mul(decimal.NewFromInt(int64(outputTokens))).Div(tokensPerUnit)
	u.InputCost, _ = in.Float64()
	u.OutputCost, _ = out.Float64()
	u.TotalCost, _ = in.Add(out).Float64()
	return u
}
