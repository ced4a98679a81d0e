// Package tokens estimates token counts for requests and completions.
//
// The estimator is character based: each model family has a characters per
// token ratio, and messages and tool calls add a fixed formatting overhead.
// This is within a few percent of real tokenizers for English text and costs
// nothing to run, which makes it suitable inside guardrails:
//
//   - the max-tokens guardrail blocks prompts or completions above a budget
//   - the rate-limit guardrail charges estimated tokens when a provider
//     reports no usage (most streams)
//
// # Usage
//
//	estimator := tokens.NewSimpleEstimator(nil) // default ratios
//
//	n := estimator.EstimateText("Hello, world", "gpt-4")
//	est := estimator.EstimateRequest(req)
//	fmt.Println(est.PromptTokens, est.TotalTokens)
//
// # Model Ratios
//
// Ratios are looked up by exact model name, then by the longest matching
// prefix ("gpt-4" matches "gpt-4-0613"), then by the "default" entry.
package tokens
