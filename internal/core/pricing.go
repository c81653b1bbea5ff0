package core

// ModelPricing is the USD cost per 1k tokens for a model.
type ModelPricing struct {
	PromptUSDPer1K     float64
	CompletionUSDPer1K float64
}

// pricingTable maps model identifiers to pricing. Models missing from the
// table mark the session pricingKnown=false instead of guessing.
var pricingTable = map[string]ModelPricing{
	"claude-sonnet-4-20250514": {PromptUSDPer1K: 0.003, CompletionUSDPer1K: 0.015},
	"claude-opus-4-1":          {PromptUSDPer1K: 0.015, CompletionUSDPer1K: 0.075},
	"claude-haiku-3-5":         {PromptUSDPer1K: 0.0008, CompletionUSDPer1K: 0.004},
	"gpt-5.1-codex":            {PromptUSDPer1K: 0.00125, CompletionUSDPer1K: 0.01},
	"gpt-4o":                   {PromptUSDPer1K: 0.0025, CompletionUSDPer1K: 0.01},
	"gpt-4o-mini":              {PromptUSDPer1K: 0.00015, CompletionUSDPer1K: 0.0006},
	"gemini-2.5-flash":         {PromptUSDPer1K: 0.00015, CompletionUSDPer1K: 0.0006},
	"gemini-2.5-pro":           {PromptUSDPer1K: 0.00125, CompletionUSDPer1K: 0.01},
}

// CostUSD computes the cost of one call. The second return is false when
// the model has no pricing entry; the returned cost is then zero.
func CostUSD(model string, usage TokenUsage) (float64, bool) {
	p, ok := pricingTable[model]
	if !ok {
		return 0, false
	}
	return float64(usage.Prompt)/1000*p.PromptUSDPer1K +
		float64(usage.Completion)/1000*p.CompletionUSDPer1K, true
}

// KnownModel reports whether pricing is known for a model.
func KnownModel(model string) bool {
	_, ok := pricingTable[model]
	return ok
}
