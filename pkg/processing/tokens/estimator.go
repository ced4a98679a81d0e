package tokens

import (
	"mercator-hq/guardrails/pkg/providers"
)

// Estimator estimates token counts for text and requests.
type Estimator interface {
	// EstimateText estimates tokens for a single text.
	EstimateText(text string, model string) int

	// EstimateMessages estimates tokens for a conversation including the
	// per-message formatting overhead.
	EstimateMessages(messages []providers.Message, model string) int

	// EstimateRequest estimates the prompt and completion tokens of req.
	EstimateRequest(req *providers.CompletionRequest) *Estimate
}

// Estimate contains detailed token estimation results.
type Estimate struct {
	// PromptTokens is SystemTokens + MessageTokens + OverheadTokens.
	PromptTokens int

	// CompletionTokens is MaxTokens when the request sets it, otherwise a
	// third of the prompt clamped to [100, 1000].
	CompletionTokens int

	TotalTokens int

	SystemTokens   int
	MessageTokens  int
	OverheadTokens int

	Model string
}
