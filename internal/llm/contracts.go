package llm

import "context"

// Usage holds token counters reported by the completion service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// Completer is the interface the structured-extraction stage depends on:
// one prompt in, message content plus token usage out. Network and auth
// failures surface as errors; the stage decides how to degrade.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, Usage, error)
}

// Per-token pricing used for run cost estimates.
const (
	promptCostPerToken     = 0.50 / 1_000_000 // $0.50 per 1M prompt tokens
	completionCostPerToken = 1.50 / 1_000_000 // $1.50 per 1M completion tokens
)

// EstimateCostUSD converts token usage into an approximate dollar cost.
func EstimateCostUSD(u Usage) float64 {
	return float64(u.PromptTokens)*promptCostPerToken +
		float64(u.CompletionTokens)*completionCostPerToken
}
