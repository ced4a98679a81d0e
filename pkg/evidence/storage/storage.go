package storage

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/guardrails/pkg/config"
	"mercator-hq/guardrails/pkg/evidence"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Pruner is implemented by backends that can cap their size. Both built-in
// backends implement it.
type Pruner interface {
	DeleteOldest(ctx context.Context, keep int64) (int64, error)
}

// New opens the backend named by cfg.Backend.
func New(cfg *config.EvidenceConfig, logger *slog.Logger) (evidence.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, "":
		return NewSQLiteStorage(cfg.SQLite, logger)
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.Backend)
	}
}

var (
	_ evidence.Storage = (*MemoryStorage)(nil)
	_ evidence.Storage = (*SQLiteStorage)(nil)
	_ Pruner           = (*MemoryStorage)(nil)
	_ Pruner           = (*SQLiteStorage)(nil)
)
