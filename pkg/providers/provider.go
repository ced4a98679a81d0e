package providers

import "context"

//go:generate mockgen -source=provider.go -destination=mocks/provider.go -package=mocks

// Provider is the generation backend the guardrail middleware wraps.
//
// Implementations live outside this module (HTTP clients for OpenAI, Anthropic,
// local models). The middleware only needs to submit a request, optionally as a
// stream, and identify the backend in logs and evidence.
//
// All methods accept a context.Context for cancellation and must return
// promptly once it is cancelled.
type Provider interface {
	// SendCompletion sends a completion request and returns the full response.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion sends a streaming completion request. It returns a channel
	// that yields incremental chunks and is closed when the stream ends.
	//
	// If an error occurs mid-stream it is delivered in the Error field of a
	// chunk; the channel is still closed afterwards.
	//
	//  chunks, err := provider.StreamCompletion(ctx, req)
	//  if err != nil {
	//      return err
	//  }
	//  for chunk := range chunks {
	//      if chunk.Error != nil {
	//          return chunk.Error
	//      }
	//      fmt.Print(chunk.Delta)
	//  }
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)

	// GetName returns the provider's configured name (e.g., "openai").
	GetName() string

	// Close releases any resources held by the provider.
	Close() error
}
