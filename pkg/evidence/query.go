package evidence

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// DefaultLimit applies when a query sets no limit.
	DefaultLimit = 100

	// MaxLimit bounds a single query.
	MaxLimit = 10000
)

// Validate checks the query and fills in defaults. It returns a *QueryError.
func (q *Query) Validate() error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must not be negative, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit %d exceeds maximum %d", q.Limit, MaxLimit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must not be negative, got %d", q.Offset))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time %s is after end_time %s", q.StartTime, q.EndTime))
	}
	if q.Gate != "" && q.Gate != GateInput && q.Gate != GateOutput {
		return NewQueryError(q, fmt.Errorf("gate must be %q or %q, got %q", GateInput, GateOutput, q.Gate))
	}

	q.SortOrder = strings.ToLower(q.SortOrder)
	if q.SortOrder != "" && !slices.Contains([]string{"asc", "desc"}, q.SortOrder) {
		return NewQueryError(q, fmt.Errorf("sort_order must be asc or desc, got %q", q.SortOrder))
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	return nil
}

// Matches reports whether r satisfies the query filters. Pagination and
// sorting are not considered.
func (q *Query) Matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && r.RecordedTime.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.RecordedTime.After(*q.EndTime) {
		return false
	}
	if q.RequestID != "" && r.RequestID != q.RequestID {
		return false
	}
	if q.Gate != "" && r.Gate != q.Gate {
		return false
	}
	if q.Provider != "" && r.Provider != q.Provider {
		return false
	}
	if q.Model != "" && r.Model != q.Model {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.Blocked != nil && r.Blocked != *q.Blocked {
		return false
	}
	if q.Guardrail != "" && !slices.Contains(r.BlockedNames(), q.Guardrail) {
		return false
	}
	return true
}
