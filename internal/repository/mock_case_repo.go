package repository

import (
	"context"
	"sync"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// MockCaseRepository is a hand-written, in-memory implementation of
// CaseRepository used in unit tests.
type MockCaseRepository struct {
	mu    sync.RWMutex
	cases map[string]map[string]string

	GetErr error
}

func NewMockCaseRepository() *MockCaseRepository {
	return &MockCaseRepository{cases: make(map[string]map[string]string)}
}

func (m *MockCaseRepository) GetByID(_ context.Context, caseID string) (scheduling.Case, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	properties, ok := m.cases[caseID]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	clone := make(map[string]string, len(properties))
	for k, v := range properties {
		clone[k] = v
	}
	return &caseRecord{id: caseID, properties: clone}, nil
}

func (m *MockCaseRepository) Upsert(_ context.Context, _ string, caseID string, properties map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := make(map[string]string, len(properties))
	for k, v := range properties {
		clone[k] = v
	}
	m.cases[caseID] = clone
	return nil
}
