package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/evidence"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
)

// MaxMessageLength bounds guardrail messages copied into a record.
const MaxMessageLength = 500

var (
	// ErrQueueFull is returned when the write queue has no room.
	ErrQueueFull = errors.New("evidence queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recorder closed")
)

// Decision describes one gate run to be recorded.
type Decision struct {
	RequestID string
	Gate      string
	Attempt   int
	Mode      string
	Provider  string
	Partial   bool
	Streaming bool
	Request   *providers.CompletionRequest
	Summary   *guardrails.Summary
}

// Recorder writes evidence records to storage on a background goroutine.
// Record never blocks the caller: when the queue is full the record is
// dropped and counted.
type Recorder struct {
	storage evidence.Storage
	config  config.RecorderConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	queue chan *evidence.Record
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics counts dropped records on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Recorder) { r.metrics = collector }
}

// WithClock overrides the time source used for RecordedTime.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New starts a recorder writing to storage.
func New(storage evidence.Storage, cfg config.RecorderConfig, opts ...Option) *Recorder {
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = config.DefaultEvidenceRecorderAsyncBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultEvidenceRecorderWriteTimeout
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		now:     time.Now,
		queue:   make(chan *evidence.Record, cfg.AsyncBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "evidence.recorder")

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("evidence recorder started",
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
		"hash_request", cfg.HashRequest,
	)
	return r
}

// RecordDecision builds a record from d and enqueues it.
func (r *Recorder) RecordDecision(ctx context.Context, d Decision) error {
	return r.Record(ctx, r.build(d))
}

// Record enqueues record, assigning an ID and RecordedTime if unset.
func (r *Recorder) Record(ctx context.Context, record *evidence.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedTime.IsZero() {
		record.RecordedTime = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return evidence.NewRecorderError(record.ID, ErrClosed)
	}

	select {
	case r.queue <- record:
		return nil
	default:
		r.metrics.RecordEvidenceDropped()
		r.logger.WarnContext(ctx, "evidence queue full, dropping record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(record.ID, ErrQueueFull)
	}
}

// Close stops accepting records, writes everything already queued and
// returns once the queue is drained.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()
		r.logger.Debug("evidence recorder stopped")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.queue:
			r.write(record)
		case <-r.done:
			for {
				select {
				case record := <-r.queue:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(record *evidence.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store evidence record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", err,
		)
		return
	}

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow evidence write",
			"record_id", record.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}

func (r *Recorder) build(d Decision) *evidence.Record {
	record := &evidence.Record{
		RequestID: d.RequestID,
		Gate:      d.Gate,
		Attempt:   d.Attempt,
		Mode:      d.Mode,
		Partial:   d.Partial,
		Streaming: d.Streaming,
		Provider:  d.Provider,
	}

	if req := d.Request; req != nil {
		record.Model = req.Model
		record.UserID = req.User
		record.Messages = len(req.Messages)
		if r.config.HashRequest {
			record.RequestHash = HashMessages(req.Messages)
		}
	}

	if s := d.Summary; s != nil {
		record.Blocked = s.Triggered()
		record.Severity = string(s.MaxSeverity())
		record.Duration = s.Duration
		record.Guardrails = make([]evidence.GuardrailRecord, 0, len(s.All))
		for _, v := range s.All {
			g := evidence.GuardrailRecord{
				Name:          v.Guardrail,
				Triggered:     v.TripwireTriggered,
				Message:       TruncateString(v.Message, MaxMessageLength),
				ExecutionTime: v.ExecutionTime,
			}
			if v.TripwireTriggered {
				g.Severity = string(v.Severity)
			}
			if v.Err != nil {
				g.Error = TruncateString(v.Err.Error(), MaxMessageLength)
			}
			record.Guardrails = append(record.Guardrails, g)
		}
	}
	return record
}
