package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tnez/RRF-Loop/pkg/models"
)

// MemoryStore is an in-memory implementation of the outcome store
type MemoryStore struct {
	mu       sync.RWMutex
	outcomes []*models.Outcome
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// RecordOutcome stores a copy of outcome
func (s *MemoryStore) RecordOutcome(_ context.Context, outcome *models.Outcome) error {
	if err := validateOutcome(outcome); err != nil {
		return err
	}
	cp := *outcome
	cp.Errors = append([]string(nil), outcome.Errors...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, &cp)
	return nil
}

// ListOutcomes returns copies, newest first
func (s *MemoryStore) ListOutcomes(_ context.Context, task string, limit int) ([]*models.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Outcome, 0, len(s.outcomes))
	for i := len(s.outcomes) - 1; i >= 0; i-- {
		o := s.outcomes[i]
		if task != "" && o.TaskName != task {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.After(result[j].RecordedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
