// Package retry re-runs a completion whose output was blocked.
//
// Run drives a sequential attempt loop. Each attempt passes the request
// through the input gate, the provider and the output gate; only an output
// block leads to another attempt. Between attempts Run sleeps for
// Policy.Backoff(attempt) and asks Policy.BuildRetryParams for the next
// request. The default builder appends a corrective user message derived from
// the first blocked verdict and leaves everything else in the request alone.
//
//	policy := retry.Policy{
//	    MaxRetries: 2,
//	    Backoff:    backoff.Exponential(200*time.Millisecond, backoff.WithMax(2*time.Second)),
//	}
//	res, err := retry.Run(ctx, policy, req, attemptOnce)
package retry
