package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore keeps reports in memory. Used when no database is
// configured and in tests.
type MemStore struct {
	reports map[uuid.UUID]*ScanReport
	mu      sync.RWMutex
}

// NewMemStore creates an empty in-memory report store.
func NewMemStore() *MemStore {
	return &MemStore{reports: make(map[uuid.UUID]*ScanReport)}
}

// SaveReport stores a report.
func (s *MemStore) SaveReport(_ context.Context, r *ScanReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

// GetReport retrieves a report by ID.
func (s *MemStore) GetReport(_ context.Context, id uuid.UUID) (*ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return r, nil
}

// ListReports returns reports newest first, up to limit. A limit of
// zero or less returns everything.
func (s *MemStore) ListReports(_ context.Context, limit int) ([]*ScanReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*ScanReport, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// DeleteReport removes a report.
func (s *MemStore) DeleteReport(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	delete(s.reports, id)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
