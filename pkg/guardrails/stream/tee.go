package stream

import (
	"context"

	"mercator-hq/guardrails/pkg/providers"
)

// CompleteFunc receives the finalized artifact once the upstream stream ends.
// A non-nil returned chunk is sent to the consumer after every upstream chunk.
type CompleteFunc func(Artifact) *providers.StreamChunk

// Tee forwards every chunk from in to the returned channel unmodified while
// accumulating them. When in closes, an error chunk arrives or ctx is done,
// the artifact is finalized and onComplete is called exactly once. The
// returned channel is closed after the trailing chunk, if any, is delivered.
//
// Guardrails see the whole completion or nothing: content is never held back
// from the consumer while it is being evaluated.
func Tee(ctx context.Context, in <-chan *providers.StreamChunk, onComplete CompleteFunc) <-chan *providers.StreamChunk {
	out := make(chan *providers.StreamChunk)

	go func() {
		defer close(out)

		buf := NewBuffer()
		streamErr := forward(ctx, in, out, buf)
		artifact := buf.Finalize(streamErr)

		if onComplete == nil {
			return
		}
		trailing := onComplete(artifact)
		if trailing == nil {
			return
		}
		select {
		case out <- trailing:
		case <-ctx.Done():
		}
	}()

	return out
}

// forward copies chunks until in closes, an error chunk is forwarded or ctx
// is done. The upstream is drained in the background when forwarding stops
// early so its producer can exit.
func forward(ctx context.Context, in <-chan *providers.StreamChunk, out chan<- *providers.StreamChunk, buf *Buffer) error {
	for {
		select {
		case <-ctx.Done():
			go drain(in)
			return ctx.Err()

		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			if chunk == nil {
				continue
			}
			_ = buf.Append(chunk)

			select {
			case out <- chunk:
			case <-ctx.Done():
				go drain(in)
				return ctx.Err()
			}

			if chunk.Error != nil {
				go drain(in)
				return chunk.Error
			}
		}
	}
}

func drain(in <-chan *providers.StreamChunk) {
	for range in {
	}
}

// Collect reads in to completion and returns the artifact. The error is the
// one that ended the stream early, if any.
func Collect(ctx context.Context, in <-chan *providers.StreamChunk) (Artifact, error) {
	buf := NewBuffer()
	for {
		select {
		case <-ctx.Done():
			go drain(in)
			a := buf.Finalize(ctx.Err())
			return a, a.Err
		case chunk, ok := <-in:
			if !ok {
				a := buf.Finalize(nil)
				return a, a.Err
			}
			_ = buf.Append(chunk)
		}
	}
}
