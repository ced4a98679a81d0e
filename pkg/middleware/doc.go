// Package middleware wraps a providers.Provider with guardrail gates.
//
// Every call moves through the same states: the input gate runs pre_flight
// and input guardrails over the request, the provider is called, and the
// output gate runs output guardrails over the completed response. What
// happens when a gate triggers depends on the Mode:
//
//   - ModeBlock: the call fails with *guardrails.InputBlockedError (the
//     provider is never called) or *guardrails.OutputBlockedError (the
//     response is discarded).
//   - ModeWarn: OnInputBlocked / OnOutputBlocked is called synchronously and
//     the call proceeds as if the gate had passed.
//
// Blocked output is resubmitted through the whole pipeline according to
// Config.Retry before the mode is applied to the last attempt:
//
//	guarded, err := middleware.Wrap(provider, middleware.Config{
//	    Source: reloadable,
//	    Retry: retry.Policy{
//	        MaxRetries: 2,
//	        Backoff:    backoff.Exponential(200 * time.Millisecond),
//	    },
//	    Recorder: rec,
//	    Metrics:  collector,
//	})
//
// Streaming calls forward every chunk as it arrives and run output
// guardrails once the stream ends. A block is reported as a trailing chunk
// carrying the error; the caller has already seen the content.
//
// Each call gets a UUID request id, carried in the context for logging, in
// guardrail metadata and in evidence records.
package middleware
