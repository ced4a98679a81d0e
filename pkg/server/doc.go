// Package server hosts the guardrails check API over HTTP.
//
// It owns the listener lifecycle and the middleware every request passes
// through. Routing belongs to the caller, which hands a plain http.Handler to
// New.
//
// # Middleware Chain
//
// From outermost to innermost:
//
//	Recovery   panics become a JSON 500 and are logged with their stack
//	RequestID  X-Request-ID is honored or generated, then echoed
//	Logging    one line per request with status and latency
//	CORS       optional, backed by github.com/rs/cors
//	Timeout    bounds the request context by server.request_timeout
//
// The request ID is stored with logging.WithRequestID so handlers and the
// guardrail engine log it without extra plumbing.
//
// # Usage
//
//	srv := server.New(&cfg.Server, mux, logger)
//	if err := srv.Run(ctx); err != nil {
//	    return err
//	}
//
// Run returns nil once ctx is cancelled and in-flight requests finish within
// server.shutdown_timeout. TLS is served when both server.tls.cert_file and
// server.tls.key_file are set.
package server
