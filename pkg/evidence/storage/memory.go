package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"mercator-hq/guardrails/pkg/evidence"
)

// MemoryStorage implements evidence.Storage in memory. Records are lost on
// exit; use it for tests and short-lived processes.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*evidence.Record
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store saves a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *evidence.Record) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewStorageError("memory", "store", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(record))
	return nil
}

// Query returns copies of the records matching query.
func (s *MemoryStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.Record, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*evidence.Record, 0)
	for _, r := range s.records {
		if query.Matches(r) {
			matched = append(matched, cloneRecord(r))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *evidence.Record) int {
		c := a.RecordedTime.Compare(b.RecordedTime)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if query.SortOrder == "desc" {
			return -c
		}
		return c
	})

	if query.Offset >= len(matched) {
		return []*evidence.Record{}, nil
	}
	matched = matched[query.Offset:]
	if len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if query.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, query.Matches)
	return int64(before - len(s.records)), nil
}

// DeleteOldest removes all but the newest keep records.
func (s *MemoryStorage) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(s.records)) <= keep {
		return 0, nil
	}
	slices.SortStableFunc(s.records, func(a, b *evidence.Record) int {
		return a.RecordedTime.Compare(b.RecordedTime)
	})
	removed := int64(len(s.records)) - keep
	s.records = slices.Clone(s.records[removed:])
	return removed, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func cloneRecord(r *evidence.Record) *evidence.Record {
	c := *r
	c.Guardrails = slices.Clone(r.Guardrails)
	return &c
}
