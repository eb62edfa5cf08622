package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// MockInstanceRepository is a hand-written, in-memory implementation of
// InstanceRepository used in unit tests.
type MockInstanceRepository struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*scheduling.ScheduleInstance

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr error
	UpdateErr error
}

func NewMockInstanceRepository() *MockInstanceRepository {
	return &MockInstanceRepository{
		instances: make(map[uuid.UUID]*scheduling.ScheduleInstance),
	}
}

func (m *MockInstanceRepository) Create(_ context.Context, inst *scheduling.ScheduleInstance) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *inst
	m.instances[inst.ID] = &clone
	return nil
}

func (m *MockInstanceRepository) GetByID(_ context.Context, id uuid.UUID) (*scheduling.ScheduleInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	clone := *inst
	return &clone, nil
}

func (m *MockInstanceRepository) Update(_ context.Context, inst *scheduling.ScheduleInstance) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; !ok {
		return scheduling.ErrNotFound
	}
	clone := *inst
	m.instances[inst.ID] = &clone
	return nil
}

func (m *MockInstanceRepository) ListBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*scheduling.ScheduleInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*scheduling.ScheduleInstance
	for _, inst := range m.instances {
		if inst.ScheduleID == scheduleID {
			clone := *inst
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockInstanceRepository) ListByCase(_ context.Context, caseID string) ([]*scheduling.ScheduleInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*scheduling.ScheduleInstance
	for _, inst := range m.instances {
		if inst.CaseID == caseID {
			clone := *inst
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MockInstanceRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, id)
	return nil
}

func (m *MockInstanceRepository) DeleteBySchedule(_ context.Context, scheduleID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, inst := range m.instances {
		if inst.ScheduleID == scheduleID {
			delete(m.instances, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MockInstanceRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*scheduling.ScheduleInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*scheduling.ScheduleInstance
	for _, inst := range m.instances {
		if inst.Active && !inst.NextEventDue.After(now) {
			clone := *inst
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].NextEventDue.Before(result[j].NextEventDue)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
