package providers

import (
	"maps"
	"strings"
)

// Message is one conversation turn. ToolCallID is set on "tool" messages
// and names the call they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Streamed fragments
// of the same call share an ID, or carry no ID when they continue the
// previous call.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries Arguments as raw JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is what the middleware hands to a Provider. Metadata
// stays local (user, tenant, rate-limit key) and is never serialized.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	TopP        float64           `json:"top_p,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	User        string            `json:"user,omitempty"`
	Metadata    map[string]string `json:"-"`
}

// Clone returns a deep copy of the request. Retry parameter builders work on
// clones so the caller's original request is never mutated.
func (r *CompletionRequest) Clone() *CompletionRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		for i, m := range r.Messages {
			out.Messages[i] = m
			if m.ToolCalls != nil {
				out.Messages[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
			}
		}
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}
	return &out
}

// PromptText joins the user messages; input guardrails inspect it.
func (r *CompletionRequest) PromptText() string {
	return r.joinRole(RoleUser)
}

// SystemText joins the system messages.
func (r *CompletionRequest) SystemText() string {
	return r.joinRole(RoleSystem)
}

func (r *CompletionRequest) joinRole(role string) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, m := range r.Messages {
		if m.Role != role || m.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// CompletionResponse is a finished, non-streamed completion.
type CompletionResponse struct {
	ID           string            `json:"id"`
	Model        string            `json:"model"`
	Content      string            `json:"content"`
	FinishReason string            `json:"finish_reason"`
	Usage        TokenUsage        `json:"usage"`
	ToolCalls    []ToolCall        `json:"tool_calls,omitempty"`
	Created      int64             `json:"created"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// StreamChunk is one streamed delta. Usage usually arrives on the last chunk
// only. A chunk with Error set ends the stream.
type StreamChunk struct {
	ID           string      `json:"id"`
	Model        string      `json:"model"`
	Delta        string      `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	Error        error       `json:"-"`
	Created      int64       `json:"created"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Values of FinishReason.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)
