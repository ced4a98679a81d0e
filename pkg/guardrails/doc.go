// Package guardrails defines the building blocks shared by the guardrail
// engine, pipeline resolver, retry orchestrator and middleware: guardrail units,
// the context they inspect, the verdicts they return, stage summaries and the
// typed error taxonomy.
//
// # Guardrails
//
// A guardrail is an opaque function from a Context to a Verdict:
//
//	noSecrets := guardrails.MustNew("no-secrets",
//	    func(ctx context.Context, in guardrails.Context) (guardrails.Verdict, error) {
//	        if strings.Contains(in.Text, "BEGIN PRIVATE KEY") {
//	            return guardrails.Trip(guardrails.SeverityCritical, "private key in content"), nil
//	        }
//	        return guardrails.Pass(), nil
//	    },
//	    guardrails.WithTimeout(50*time.Millisecond),
//	    guardrails.WithTags("security"),
//	)
//
// A verdict with TripwireTriggered false is a pass regardless of its other
// fields. Metadata is opaque and passed through unmodified.
//
// # Errors
//
// Every error type implements Recordable, producing an ErrorRecord with name,
// code, message, timestamp, metadata and stack. InputBlockedError and
// OutputBlockedError match ErrBlocked with errors.Is and carry every triggered
// guardrail, not just the first.
package guardrails
