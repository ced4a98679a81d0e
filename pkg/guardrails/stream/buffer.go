package stream

import (
	"errors"
	"strings"
	"sync"

	"mercator-hq/guardrails/pkg/providers"
)

// ErrFinalized is returned by Append once the buffer has been finalized.
var ErrFinalized = errors.New("stream buffer already finalized")

// Artifact is the finalized content of a streamed completion.
type Artifact struct {
	ID           string
	Model        string
	Text         string
	ToolCalls    []providers.ToolCall
	FinishReason string
	Usage        *providers.TokenUsage
	Created      int64

	// Chunks is the number of chunks appended.
	Chunks int

	// Partial is set when the stream ended with an error or was cancelled
	// before the provider closed it.
	Partial bool

	// Err is the error that ended the stream early, if any.
	Err error
}

// Response converts the artifact to a completion response for output
// guardrails.
func (a Artifact) Response() *providers.CompletionResponse {
	resp := &providers.CompletionResponse{
		ID:           a.ID,
		Model:        a.Model,
		Content:      a.Text,
		FinishReason: a.FinishReason,
		ToolCalls:    a.ToolCalls,
		Created:      a.Created,
	}
	if a.Usage != nil {
		resp.Usage = *a.Usage
	}
	return resp
}

// Buffer accumulates stream chunks into an Artifact. It is safe for
// concurrent use; Finalize freezes it.
type Buffer struct {
	mu sync.Mutex

	id           string
	model        string
	created      int64
	text         strings.Builder
	toolCalls    []providers.ToolCall
	callIndex    map[string]int
	finishReason string
	usage        *providers.TokenUsage
	chunks       int
	err          error

	finalized bool
	artifact  Artifact
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{callIndex: make(map[string]int)}
}

// Append adds a chunk. Text deltas are concatenated. Tool call fragments with
// an ID start or extend the call with that ID; fragments without an ID extend
// the most recent call. An error chunk is remembered and marks the artifact
// partial.
func (b *Buffer) Append(chunk *providers.StreamChunk) error {
	if chunk == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return ErrFinalized
	}

	b.chunks++
	if chunk.ID != "" {
		b.id = chunk.ID
	}
	if chunk.Model != "" {
		b.model = chunk.Model
	}
	if b.created == 0 {
		b.created = chunk.Created
	}
	b.text.WriteString(chunk.Delta)
	for _, tc := range chunk.ToolCalls {
		b.mergeToolCall(tc)
	}
	if chunk.FinishReason != "" {
		b.finishReason = chunk.FinishReason
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		b.usage = &u
	}
	if chunk.Error != nil && b.err == nil {
		b.err = chunk.Error
	}

	return nil
}

func (b *Buffer) mergeToolCall(tc providers.ToolCall) {
	if tc.ID == "" {
		if len(b.toolCalls) == 0 {
			b.toolCalls = append(b.toolCalls, tc)
			return
		}
		last := &b.toolCalls[len(b.toolCalls)-1]
		appendFragment(last, tc)
		return
	}

	if i, ok := b.callIndex[tc.ID]; ok {
		appendFragment(&b.toolCalls[i], tc)
		return
	}

	b.callIndex[tc.ID] = len(b.toolCalls)
	b.toolCalls = append(b.toolCalls, tc)
}

func appendFragment(dst *providers.ToolCall, frag providers.ToolCall) {
	if dst.Type == "" {
		dst.Type = frag.Type
	}
	if dst.Function.Name == "" {
		dst.Function.Name = frag.Function.Name
	}
	dst.Function.Arguments += frag.Function.Arguments
}

// Finalize freezes the buffer and returns the artifact. err, or an error seen
// in an appended chunk, marks the artifact partial. Later calls return the
// same artifact.
func (b *Buffer) Finalize(err error) Artifact {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return b.artifact
	}

	if b.err == nil {
		b.err = err
	}

	b.artifact = Artifact{
		ID:           b.id,
		Model:        b.model,
		Text:         b.text.String(),
		ToolCalls:    append([]providers.ToolCall(nil), b.toolCalls...),
		FinishReason: b.finishReason,
		Usage:        b.usage,
		Created:      b.created,
		Chunks:       b.chunks,
		Partial:      b.err != nil,
		Err:          b.err,
	}
	b.finalized = true

	return b.artifact
}

// Finalized reports whether Finalize has been called.
func (b *Buffer) Finalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

// Len returns the number of bytes of text accumulated so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.Len()
}
