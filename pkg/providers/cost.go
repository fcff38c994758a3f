package providers

import "strings"

// modelPrice is USD per one million tokens.
type modelPrice struct {
	prompt     float64
	completion float64
}

// Longest matching prefix wins, so "gpt-4o-mini" must not be shadowed by
// "gpt-4o".
var modelPrices = map[string]modelPrice{
	"gpt-4o-mini":       {0.15, 0.60},
	"gpt-4o":            {2.50, 10.00},
	"gpt-4.1-mini":      {0.40, 1.60},
	"gpt-4.1-nano":      {0.10, 0.40},
	"gpt-4.1":           {2.00, 8.00},
	"o3-mini":           {1.10, 4.40},
	"o4-mini":           {1.10, 4.40},
	"claude-3-5-haiku":  {0.80, 4.00},
	"claude-haiku-4":    {1.00, 5.00},
	"claude-3-7-sonnet": {3.00, 15.00},
	"claude-sonnet-4":   {3.00, 15.00},
	"claude-opus-4":     {15.00, 75.00},
	"deepseek-chat":     {0.27, 1.10},
	"deepseek-reasoner": {0.55, 2.19},
}

// CalculateCost estimates the USD cost of usage on model. Unknown models
// cost nothing.
func CalculateCost(model string, usage UsageInfo) float64 {
	name := strings.ToLower(model)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	var best string
	for prefix := range modelPrices {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := modelPrices[best]
	return (float64(usage.PromptTokens)*p.prompt + float64(usage.CompletionTokens)*p.completion) / 1_000_000
}
