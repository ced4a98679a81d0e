package tokens

import (
	"maps"
	"strings"

	"mercator-hq/guardrails/pkg/providers"
)

// DefaultModel is the ratio key used when no model matches.
const DefaultModel = "default"

// Formatting overheads, in tokens.
const (
	roleOverhead         = 1
	messageOverhead      = 3
	conversationOverhead = 3
	requestOverhead      = 5
	toolCallIDTokens     = 10
	toolCallOverhead     = 5
)

// Completion estimate bounds when the request sets no max_tokens.
const (
	minCompletionEstimate = 100
	maxCompletionEstimate = 1000
)

// DefaultRatios are characters per token for common model families.
var DefaultRatios = map[string]float64{
	DefaultModel: 4.0,
	"gpt-4":      4.0,
	"gpt-3.5":    4.0,
	"claude":     3.5,
	"llama":      3.8,
	"mistral":    3.8,
}

// SimpleEstimator implements character-based token estimation. It is safe
// for concurrent use; ratios are fixed at construction.
type SimpleEstimator struct {
	ratios map[string]float64
}

var _ Estimator = (*SimpleEstimator)(nil)

// NewSimpleEstimator creates an estimator with ratios layered over
// DefaultRatios. Non-positive ratios are ignored.
func NewSimpleEstimator(ratios map[string]float64) *SimpleEstimator {
	merged := maps.Clone(DefaultRatios)
	for model, r := range ratios {
		if r > 0 {
			merged[model] = r
		}
	}
	return &SimpleEstimator{ratios: merged}
}

// EstimateText rounds len(text)/ratio to the nearest integer. Non-empty text
// is at least one token.
func (e *SimpleEstimator) EstimateText(text string, model string) int {
	if text == "" {
		return 0
	}
	n := float64(len(text)) / e.CharsPerToken(model)
	if n < 1 {
		return 1
	}
	return int(n + 0.5)
}

// EstimateMessages estimates tokens for a conversation.
func (e *SimpleEstimator) EstimateMessages(messages []providers.Message, model string) int {
	if len(messages) == 0 {
		return 0
	}

	total := conversationOverhead
	for _, m := range messages {
		total += roleOverhead + messageOverhead
		total += e.EstimateText(m.Content, model)
		total += e.EstimateText(m.Name, model)
		total += e.estimateToolCalls(m.ToolCalls, model)
	}
	return total
}

// EstimateRequest estimates every token of req. A nil request estimates to
// zero.
func (e *SimpleEstimator) EstimateRequest(req *providers.CompletionRequest) *Estimate {
	est := &Estimate{}
	if req == nil {
		return est
	}
	est.Model = req.Model

	var system, other []providers.Message
	for _, m := range req.Messages {
		if m.Role == providers.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	est.SystemTokens = e.EstimateMessages(system, req.Model)
	est.MessageTokens = e.EstimateMessages(other, req.Model)
	est.OverheadTokens = requestOverhead
	est.PromptTokens = est.SystemTokens + est.MessageTokens + est.OverheadTokens

	if req.MaxTokens > 0 {
		est.CompletionTokens = req.MaxTokens
	} else {
		est.CompletionTokens = min(max(est.PromptTokens/3, minCompletionEstimate), maxCompletionEstimate)
	}
	est.TotalTokens = est.PromptTokens + est.CompletionTokens
	return est
}

// CharsPerToken returns the ratio for model: exact match, then longest
// prefix, then the default.
func (e *SimpleEstimator) CharsPerToken(model string) float64 {
	if r, ok := e.ratios[model]; ok {
		return r
	}

	best, ratio := 0, 0.0
	for prefix, r := range e.ratios {
		if prefix != DefaultModel && len(prefix) > best && strings.HasPrefix(model, prefix) {
			best, ratio = len(prefix), r
		}
	}
	if best > 0 {
		return ratio
	}
	return e.ratios[DefaultModel]
}

func (e *SimpleEstimator) estimateToolCalls(calls []providers.ToolCall, model string) int {
	total := 0
	for _, tc := range calls {
		total += toolCallIDTokens + toolCallOverhead
		total += e.EstimateText(tc.Function.Name, model)
		total += e.EstimateText(tc.Function.Arguments, model)
	}
	return total
}
