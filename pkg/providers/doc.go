// Package providers defines the provider-agnostic request, response and stream
// types that flow through the guardrail middleware, and the Provider interface
// the middleware wraps.
//
// This module does not ship provider clients. Any backend that can satisfy
// Provider (an HTTP client for a hosted model, a local model runner, a test
// double) can be wrapped:
//
//	guarded, err := middleware.Wrap(openaiClient, middleware.Config{
//	    InputGuardrails:  inputs,
//	    OutputGuardrails: outputs,
//	})
//	if err != nil {
//	    return err
//	}
//	resp, err := guarded.SendCompletion(ctx, &providers.CompletionRequest{
//	    Model:    "gpt-4",
//	    Messages: []providers.Message{{Role: providers.RoleUser, Content: "Hello!"}},
//	})
//
// # Streaming
//
// StreamCompletion returns a channel of StreamChunk values. Errors that occur
// after the stream started are delivered in the Error field of a chunk, and the
// channel is closed afterwards.
//
// # Testing
//
// The mocks subpackage contains a gomock implementation of Provider generated
// with mockgen.
package providers
