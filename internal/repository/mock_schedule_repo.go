package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// MockScheduleRepository is a hand-written, in-memory implementation of
// ScheduleRepository used in unit tests. No mock-generation library needed.
type MockScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]*scheduling.StoredSchedule

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr  error
	GetByIDErr error
	UpdateErr  error
}

func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{
		schedules: make(map[uuid.UUID]*scheduling.StoredSchedule),
	}
}

func (m *MockScheduleRepository) Create(_ context.Context, s *scheduling.StoredSchedule) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	base, err := s.Base()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[base.ID] = cloneStoredSchedule(s)
	return nil
}

func (m *MockScheduleRepository) GetByID(_ context.Context, id uuid.UUID) (*scheduling.StoredSchedule, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, scheduling.ErrNotFound
	}
	return cloneStoredSchedule(s), nil
}

func (m *MockScheduleRepository) Update(_ context.Context, s *scheduling.StoredSchedule) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	base, err := s.Base()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[base.ID]; !ok {
		return scheduling.ErrNotFound
	}
	m.schedules[base.ID] = cloneStoredSchedule(s)
	return nil
}

func (m *MockScheduleRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return scheduling.ErrNotFound
	}
	base, err := s.Base()
	if err != nil {
		return err
	}
	base.Active = active
	return nil
}

func (m *MockScheduleRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

// cloneStoredSchedule deep-copies a stored schedule so tests never share
// event or filter state with the repository's copy.
func cloneStoredSchedule(s *scheduling.StoredSchedule) *scheduling.StoredSchedule {
	out := &scheduling.StoredSchedule{Kind: s.Kind}
	switch {
	case s.Alert != nil:
		alert := *s.Alert
		alert.Schedule = cloneScheduleBase(s.Alert.Schedule)
		out.Alert = &alert
	case s.Timed != nil:
		timed := *s.Timed
		timed.Schedule = cloneScheduleBase(s.Timed.Schedule)
		out.Timed = &timed
	}
	return out
}

func cloneScheduleBase(base scheduling.Schedule) scheduling.Schedule {
	out := base
	out.Events = make([]scheduling.Event, 0, len(base.Events))
	for _, e := range base.Events {
		out.Events = append(out.Events, e.Copy())
	}
	if base.UserDataFilter != nil {
		out.UserDataFilter = make(map[string][]string, len(base.UserDataFilter))
		for k, v := range base.UserDataFilter {
			out.UserDataFilter[k] = append([]string(nil), v...)
		}
	}
	return out
}
