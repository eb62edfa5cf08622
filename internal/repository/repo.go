package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// ScheduleRepository defines persistence for schedule definitions and their
// event lists. The pgx implementation is in pg_schedule_repo.go; tests use a
// hand-written mock (mock_schedule_repo.go).
//
// An event list is loaded and stored as a whole: Update replaces the entire
// list atomically, never patching individual events in place.
type ScheduleRepository interface {
	Create(ctx context.Context, s *scheduling.StoredSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*scheduling.StoredSchedule, error)
	Update(ctx context.Context, s *scheduling.StoredSchedule) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InstanceRepository defines persistence for per-recipient schedule
// instances. ClaimDue is the sweep entry point: it atomically marks a batch
// of due instances as being processed so concurrent sweepers never pick up
// the same instance twice.
type InstanceRepository interface {
	Create(ctx context.Context, inst *scheduling.ScheduleInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*scheduling.ScheduleInstance, error)
	Update(ctx context.Context, inst *scheduling.ScheduleInstance) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*scheduling.ScheduleInstance, error)
	ListByCase(ctx context.Context, caseID string) ([]*scheduling.ScheduleInstance, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySchedule(ctx context.Context, scheduleID uuid.UUID) (int64, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*scheduling.ScheduleInstance, error)
}

// BroadcastRepository defines persistence for broadcast definitions.
// Deletion is two-phase: SoftDelete hides the broadcast immediately, and the
// purge worker later walks FindDeleted to remove instances, schedule and
// broadcast row for good.
type BroadcastRepository interface {
	Create(ctx context.Context, b *scheduling.Broadcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*scheduling.Broadcast, error)
	GetByScheduleID(ctx context.Context, scheduleID uuid.UUID) (*scheduling.Broadcast, error)
	List(ctx context.Context, domain string, page, limit int) ([]*scheduling.Broadcast, int, error)
	Update(ctx context.Context, b *scheduling.Broadcast) error
	SetLastSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	FindDeleted(ctx context.Context, limit int) ([]*scheduling.Broadcast, error)
	HardDelete(ctx context.Context, id uuid.UUID) error
}

// CaseRepository exposes the case store backing case-driven instances. The
// engine only ever reads dynamic properties; Upsert exists for the platform
// feed that mirrors cases into this service.
type CaseRepository interface {
	GetByID(ctx context.Context, caseID string) (scheduling.Case, error)
	Upsert(ctx context.Context, domain, caseID string, properties map[string]string) error
}
