package memory

import (
	"context"
	"sync"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

// YieldReportStore is an in-memory implementation of storage.YieldReportStore.
type YieldReportStore struct {
	mu    sync.RWMutex
	keys  map[string]struct{}
	order []*domain.YieldReport
}

// NewYieldReportStore creates a new in-memory yield report store.
func NewYieldReportStore() *YieldReportStore {
	return &YieldReportStore{keys: make(map[string]struct{})}
}

var _ storage.YieldReportStore = (*YieldReportStore)(nil)

// InsertBulk adds multiple reports atomically. Fails entire batch on any duplicate.
func (s *YieldReportStore) InsertBulk(_ context.Context, reports []*domain.YieldReport) error {
	if len(reports) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		if err := storage.ValidateYieldReport(r); err != nil {
			return err
		}
		if _, exists := s.keys[r.ReportID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ReportID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ReportID] = struct{}{}
	}

	for _, r := range reports {
		c := *r
		s.keys[r.ReportID] = struct{}{}
		s.order = append(s.order, &c)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *YieldReportStore) Recent(_ context.Context, limit int) ([]*domain.YieldReport, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.YieldReport, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		c := *s.order[i]
		result = append(result, &c)
	}
	return result, nil
}
