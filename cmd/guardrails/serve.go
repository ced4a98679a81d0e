package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/guardrails/pkg/cli"
	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/evidence"
	"mercator-hq/guardrails/pkg/evidence/recorder"
	"mercator-hq/guardrails/pkg/evidence/retention"
	"mercator-hq/guardrails/pkg/evidence/storage"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/builtin"
	"mercator-hq/guardrails/pkg/guardrails/engine"
	"mercator-hq/guardrails/pkg/guardrails/pipeline"
	"mercator-hq/guardrails/pkg/middleware"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/server"
	"mercator-hq/guardrails/pkg/telemetry/health"
	"mercator-hq/guardrails/pkg/telemetry/logging"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
	"mercator-hq/guardrails/pkg/telemetry/tracing"
)

var serveFlags struct {
	listen          string
	shutdownTimeout time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the check API with health and metrics endpoints",
	Long: `Serve guardrail checks over HTTP.

Endpoints:
  POST /v1/check   {"text": "...", "stage": "input"} -> verdicts
  GET  /healthz    liveness
  GET  /readyz     readiness (pipeline loaded, evidence store reachable)
  GET  /version    build information
  GET  /metrics    Prometheus metrics (when telemetry.metrics.enabled)

Requests carry an X-Request-ID, generated when absent, which is echoed
in the response and stored with the evidence record. With
guardrails.watch the pipeline file is reloaded on change. With
evidence.enabled every check is recorded and pruned on the retention
schedule. Listener, timeout, TLS and CORS settings come from the server
section of the configuration file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveFlags.listen, "listen", "l", "", "listen address (overrides server.listen_address)")
	serveCmd.Flags().DurationVar(&serveFlags.shutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout (overrides server.shutdown_timeout)")
}

// checkAPI holds everything the check API needs.
type checkAPI struct {
	cfg       *config.Config
	logger    *slog.Logger
	mode      middleware.Mode
	pipelines *pipeline.Reloadable
	watcher   *pipeline.Watcher
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	store     evidence.Storage
	recorder  *recorder.Recorder
	scheduler *retention.Scheduler
	checker   *health.Checker
}

// newCheckAPI loads the pipeline and starts the watcher and retention
// scheduler, both bound to ctx.
func newCheckAPI(ctx context.Context, env *environment) (*checkAPI, error) {
	cfg := env.cfg
	s := &checkAPI{cfg: cfg, logger: env.logger.With("component", "serve")}

	mode, err := middleware.ParseMode(cfg.Guardrails.Mode)
	if err != nil {
		return nil, err
	}
	s.mode = mode

	if cfg.Telemetry.Metrics.Enabled {
		s.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	s.tracer = tracing.Disabled()
	if cfg.Telemetry.Tracing.Enabled {
		tracing.Version = Version
		if s.tracer, err = tracing.New(&cfg.Telemetry.Tracing); err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}

	e, err := engine.New(
		engine.WithConfig(engine.FromConfig(cfg.Guardrails)),
		engine.WithLogger(env.logger),
		engine.WithMetrics(s.metrics),
		engine.WithTracer(s.tracer),
	)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{pipeline.WithEngine(e), pipeline.WithLogger(env.logger)}
	registry := builtin.NewRegistry()

	p, err := pipeline.FromFile(cfg.Guardrails.PipelinePath, registry, opts...)
	if err != nil {
		return nil, err
	}
	s.pipelines = pipeline.NewReloadable(p)

	if cfg.Guardrails.Watch {
		s.watcher, err = pipeline.NewWatcher(pipeline.WatcherConfig{
			Path:     cfg.Guardrails.PipelinePath,
			Debounce: cfg.Guardrails.WatchDebounce,
			Options:  opts,
		}, registry, s.pipelines, env.logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := s.watcher.Watch(ctx); err != nil {
				s.logger.Error("pipeline watcher exited", "error", err)
			}
		}()
	}

	if cfg.Evidence.Enabled {
		if s.store, err = storage.New(&cfg.Evidence, env.logger); err != nil {
			s.Close()
			return nil, err
		}
		s.recorder = recorder.New(s.store, cfg.Evidence.Recorder,
			recorder.WithLogger(env.logger),
			recorder.WithMetrics(s.metrics),
		)
		pruner := retention.NewPruner(s.store, cfg.Evidence.Retention, retention.WithLogger(env.logger))
		s.scheduler = retention.NewScheduler(pruner, "", env.logger)
		if err := s.scheduler.Start(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.checker = health.New(2 * time.Second)
	s.checker.Register("pipeline", func(context.Context) error {
		if s.pipelines.Current() == nil {
			return pipeline.ErrNoPipeline
		}
		return nil
	})
	if s.store != nil {
		s.checker.Register("evidence", func(ctx context.Context) error {
			_, err := s.store.Count(ctx, &evidence.Query{})
			return err
		})
	}

	return s, nil
}

// Handler routes the check API, health and metrics endpoints.
func (s *checkAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	health.Mount(mux, s.checker, health.NewVersionInfo(Version, GitCommit, BuildDate))
	if s.metrics != nil {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.metrics.Handler())
	}
	return mux
}

// Close stops background work and flushes evidence. It is safe to call on a
// partially built server.
func (s *checkAPI) Close() error {
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Stop())
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

type checkRequest struct {
	Text  string `json:"text"`
	Stage string `json:"stage"`
	User  string `json:"user,omitempty"`
	Model string `json:"model,omitempty"`
}

type checkResponse struct {
	RequestID string `json:"request_id"`
	Mode      string `json:"mode"`
	// Action is what the middleware would do: pass, block or warn.
	Action string `json:"action"`
	checkResult
}

func (s *checkAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)).Decode(&req); err != nil {
		server.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Stage == "" {
		req.Stage = string(guardrails.StageInput)
	}
	stage := guardrails.Stage(req.Stage)
	if !stage.Valid() {
		server.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", req.Stage))
		return
	}

	ctx := r.Context()
	id := logging.GetRequestID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = logging.WithRequestID(ctx, id)
	}
	ctx = logging.WithStage(ctx, req.Stage)

	res, err := evaluate(ctx, s.pipelines, stage, req.Text)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrNoPipeline):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.logger.ErrorContext(ctx, "check failed", "error", err)
		server.WriteError(w, status, err.Error())
		return
	}

	gate := evidence.GateInput
	if stage == guardrails.StageOutput {
		gate = evidence.GateOutput
	}
	action := s.decide(gate, res)
	s.record(ctx, id, gate, req, res)

	server.WriteJSON(w, http.StatusOK, checkResponse{
		RequestID:   id,
		Mode:        string(s.mode),
		Action:      action,
		checkResult: newCheckResult("", res),
	})
}

// decide maps a result to the middleware's action and counts it.
func (s *checkAPI) decide(gate string, res *pipeline.StageResult) string {
	switch {
	case !res.Blocked:
		s.metrics.RecordGate(gate, metrics.OutcomePassed)
		return "pass"
	case s.mode == middleware.ModeWarn:
		s.metrics.RecordGate(gate, metrics.OutcomeWarned)
		return "warn"
	default:
		s.metrics.RecordGate(gate, metrics.OutcomeBlocked)
		return "block"
	}
}

func (s *checkAPI) record(ctx context.Context, id, gate string, req checkRequest, res *pipeline.StageResult) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordDecision(ctx, recorder.Decision{
		RequestID: id,
		Gate:      gate,
		Attempt:   1,
		Mode:      string(s.mode),
		Provider:  "api",
		Request: &providers.CompletionRequest{
			Model:    req.Model,
			User:     req.User,
			Messages: []providers.Message{{Role: providers.RoleUser, Content: req.Text}},
		},
		Summary: res.Summary,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "evidence not recorded", "error", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	if serveFlags.listen != "" {
		env.cfg.Server.ListenAddress = serveFlags.listen
	}
	if serveFlags.shutdownTimeout > 0 {
		env.cfg.Server.ShutdownTimeout = serveFlags.shutdownTimeout
	}

	ctx, stop := cli.NotifyContext(commandContext(cmd))
	defer stop()

	api, err := newCheckAPI(ctx, env)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer api.Close()

	env.logger.Info("serving guardrail checks", "address", env.cfg.Server.ListenAddress, "mode", api.mode)
	if err := server.New(&env.cfg.Server, api.Handler(), env.logger).Run(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}
