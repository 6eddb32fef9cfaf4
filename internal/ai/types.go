package ai

// Message is one turn handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token/cost delta reported for a single generation call.
// Providers that do not report a field leave it zero; consumers must
// treat the zero value as "nothing consumed", never as an error.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
}

// Add returns the sum of u and d, field by field.
func (u Usage) Add(d Usage) Usage {
	u.InputTokens += d.InputTokens
	u.OutputTokens += d.OutputTokens
	u.TotalTokens += d.TotalTokens
	u.InputCost += d.InputCost
	u.OutputCost += d.OutputCost
	u.TotalCost += d.TotalCost
	return u
}

// GenerationResult is the outcome of a single engine operation.
// Expected failures (provider errors, unusable output) are reported via
// Success=false and ErrorMessage; callers must check Success before
// trusting Content.
type GenerationResult struct {
	Success      bool   `json:"success"`
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	ErrorMessage string `json:"error_message,omitempty"`
}
