// Package stream turns a live completion stream into a single artifact for
// output guardrails while the caller keeps reading the stream unmodified.
//
// Tee is the streaming entry point:
//
//	out := stream.Tee(ctx, chunks, func(a stream.Artifact) *providers.StreamChunk {
//	    summary := eng.Run(ctx, outputGuardrails, contextFor(a))
//	    if summary.Triggered() {
//	        return &providers.StreamChunk{Error: guardrails.NewOutputBlockedError(summary, 1)}
//	    }
//	    return nil
//	})
//
// Guardrails only evaluate the finished completion. Content that violates a
// policy has already been delivered by the time the trailing error chunk
// arrives; interrupting a stream mid-flight is not supported.
//
// A stream that ends with an error chunk or a cancelled context still
// produces an artifact, marked Partial.
package stream
