// Package health serves liveness, readiness and version endpoints for the
// guardrails admin server.
//
// Components register checks by name; readiness runs them concurrently,
// each bounded by the checker timeout:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("pipeline", func(ctx context.Context) error {
//	    if reloadable.Current() == nil {
//	        return errors.New("no pipeline loaded")
//	    }
//	    return nil
//	})
//
//	mux := http.NewServeMux()
//	health.Mount(mux, checker, health.NewVersionInfo(version, commit, date))
//
// Endpoints:
//
//   - /healthz: always 200 while the process serves requests
//   - /readyz: 200 when every check passes, 503 with the failing checks otherwise
//   - /version: build information
package health
