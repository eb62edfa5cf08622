package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastKind discriminates one-shot immediate broadcasts from recurring
// scheduled ones.
type BroadcastKind string

const (
	// BroadcastImmediate fires once through an alert schedule and can
	// never be edited afterwards.
	BroadcastImmediate BroadcastKind = "immediate"
	// BroadcastScheduled pairs a start date with a timed schedule.
	BroadcastScheduled BroadcastKind = "scheduled"
)

func (k BroadcastKind) IsValid() bool {
	return k == BroadcastImmediate || k == BroadcastScheduled
}

// Broadcast is a named send definition binding a schedule to a fixed,
// explicit recipient list, as opposed to rule-triggered per-case instances.
// The recipient list is a snapshot taken at creation time.
type Broadcast struct {
	ID         uuid.UUID
	Domain     string
	Name       string
	Kind       BroadcastKind
	ScheduleID uuid.UUID
	Recipients []Recipient

	// StartDate is the local date the schedule starts (scheduled only).
	StartDate time.Time

	// LastSentTimestamp records the most recent send through this
	// broadcast's schedule, in UTC. Zero until the first send.
	LastSentTimestamp time.Time

	Deleted   bool
	CreatedAt time.Time
}

// CanEdit reports whether the broadcast definition may be modified.
// Immediate broadcasts are one-shot: their schedule has already fired by
// the time an edit could arrive, so edits fail loudly instead of silently
// corrupting sent state.
func (b *Broadcast) CanEdit() error {
	if b.Kind == BroadcastImmediate {
		return ErrImmediateBroadcastEdit
	}
	return nil
}
