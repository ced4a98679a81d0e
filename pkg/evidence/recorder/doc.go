// Package recorder turns gate decisions into evidence records and writes
// them to storage without blocking the request path.
//
//	rec := recorder.New(store, cfg.Evidence.Recorder,
//	    recorder.WithLogger(logger),
//	    recorder.WithMetrics(collector),
//	)
//	defer rec.Close()
//
//	rec.RecordDecision(ctx, recorder.Decision{
//	    RequestID: id,
//	    Gate:      evidence.GateInput,
//	    Attempt:   1,
//	    Summary:   summary,
//	    Request:   req,
//	})
//
// Records are queued on a buffered channel drained by one worker. A full
// queue drops the record, logs a warning and increments
// evidence_dropped_total. Close drains the queue before returning.
//
// Request messages are never stored. With HashRequest enabled the record
// carries the SHA-256 of their JSON encoding instead.
package recorder
