package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/evidence"
	"mercator-hq/guardrails/pkg/evidence/export"
	"mercator-hq/guardrails/pkg/evidence/storage"
)

// ErrCountUnsupported is returned when MaxRecords is set but the backend
// cannot delete its oldest records.
var ErrCountUnsupported = errors.New("storage backend does not support count-based pruning")

// Pruner deletes evidence older than the retention period and, when a cap is
// configured, the oldest records beyond it.
type Pruner struct {
	storage evidence.Storage
	config  config.RetentionConfig
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) { p.logger = logger }
}

// WithClock overrides the time source used to compute the age cutoff.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// NewPruner creates a pruner over store.
func NewPruner(store evidence.Storage, cfg config.RetentionConfig, opts ...Option) *Pruner {
	p := &Pruner{storage: store, config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "evidence.retention")
	return p
}

// Config returns the retention configuration.
func (p *Pruner) Config() config.RetentionConfig {
	return p.config
}

// Prune runs age-based then count-based pruning and returns the number of
// records deleted. Either phase is skipped when its limit is zero.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.Days > 0 {
		n, err := p.pruneByAge(ctx)
		if err != nil {
			return total, evidence.NewRetentionError(p.config.Days, err)
		}
		total += n
	}

	if p.config.MaxRecords > 0 {
		n, err := p.pruneByCount(ctx)
		if err != nil {
			return total, evidence.NewRetentionError(p.config.Days, err)
		}
		total += n
	}

	if total > 0 {
		p.logger.Info("evidence pruned",
			"deleted", total,
			"retention_days", p.config.Days,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.Days)
	query := &evidence.Query{EndTime: &cutoff}

	if p.config.ArchivePath != "" {
		var records []*evidence.Record
		for offset := 0; ; offset += evidence.MaxLimit {
			page, err := p.storage.Query(ctx, &evidence.Query{EndTime: &cutoff, Limit: evidence.MaxLimit, Offset: offset, SortOrder: "asc"})
			if err != nil {
				return 0, fmt.Errorf("query records to archive: %w", err)
			}
			records = append(records, page...)
			if len(page) < evidence.MaxLimit {
				break
			}
		}
		if err := p.archive(ctx, "age", records); err != nil {
			return 0, err
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete records before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	capped, ok := p.storage.(storage.Pruner)
	if !ok {
		return 0, ErrCountUnsupported
	}

	count, err := p.storage.Count(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	if p.config.ArchivePath != "" {
		var records []*evidence.Record
		for offset := int64(0); offset < excess; offset += evidence.MaxLimit {
			limit := int(min(excess-offset, evidence.MaxLimit))
			page, err := p.storage.Query(ctx, &evidence.Query{Limit: limit, Offset: int(offset), SortOrder: "asc"})
			if err != nil {
				return 0, fmt.Errorf("query records to archive: %w", err)
			}
			records = append(records, page...)
		}
		if err := p.archive(ctx, "count", records); err != nil {
			return 0, err
		}
	}

	return capped.DeleteOldest(ctx, p.config.MaxRecords)
}

// archive writes records to a timestamped JSON file under ArchivePath.
func (p *Pruner) archive(ctx context.Context, reason string, records []*evidence.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	name := fmt.Sprintf("evidence-%s-%s.json", reason, p.now().UTC().Format("20060102-150405.000000000"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(false).Export(ctx, records, f); err != nil {
		return err
	}

	p.logger.Info("evidence archived", "file", path, "records", len(records))
	return nil
}
