package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// MockBroadcastRepository is a hand-written, in-memory implementation of
// BroadcastRepository used in unit tests.
type MockBroadcastRepository struct {
	mu         sync.RWMutex
	broadcasts map[uuid.UUID]*scheduling.Broadcast

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr error
	UpdateErr error
}

func NewMockBroadcastRepository() *MockBroadcastRepository {
	return &MockBroadcastRepository{
		broadcasts: make(map[uuid.UUID]*scheduling.Broadcast),
	}
}

func (m *MockBroadcastRepository) Create(_ context.Context, b *scheduling.Broadcast) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts[b.ID] = cloneBroadcast(b)
	return nil
}

func (m *MockBroadcastRepository) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.broadcasts[id]
	if !ok || b.Deleted {
		return nil, scheduling.ErrNotFound
	}
	return cloneBroadcast(b), nil
}

func (m *MockBroadcastRepository) GetByScheduleID(_ context.Context, scheduleID uuid.UUID) (*scheduling.Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.broadcasts {
		if b.ScheduleID == scheduleID && !b.Deleted {
			return cloneBroadcast(b), nil
		}
	}
	return nil, scheduling.ErrNotFound
}

func (m *MockBroadcastRepository) List(_ context.Context, domain string, page, limit int) ([]*scheduling.Broadcast, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*scheduling.Broadcast
	for _, b := range m.broadcasts {
		if b.Domain == domain && !b.Deleted {
			result = append(result, cloneBroadcast(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := len(result)
	start := (page - 1) * limit
	if start >= len(result) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (m *MockBroadcastRepository) Update(_ context.Context, b *scheduling.Broadcast) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.broadcasts[b.ID]
	if !ok || existing.Deleted {
		return scheduling.ErrNotFound
	}
	existing.Name = b.Name
	existing.Recipients = append([]scheduling.Recipient(nil), b.Recipients...)
	existing.StartDate = b.StartDate
	return nil
}

func (m *MockBroadcastRepository) SetLastSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.broadcasts[id]; ok {
		b.LastSentTimestamp = sentAt
	}
	return nil
}

func (m *MockBroadcastRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasts[id]
	if !ok || b.Deleted {
		return scheduling.ErrNotFound
	}
	b.Deleted = true
	return nil
}

func (m *MockBroadcastRepository) FindDeleted(_ context.Context, limit int) ([]*scheduling.Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*scheduling.Broadcast
	for _, b := range m.broadcasts {
		if b.Deleted {
			result = append(result, cloneBroadcast(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockBroadcastRepository) HardDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.broadcasts, id)
	return nil
}

func cloneBroadcast(b *scheduling.Broadcast) *scheduling.Broadcast {
	out := *b
	out.Recipients = append([]scheduling.Recipient(nil), b.Recipients...)
	return &out
}
