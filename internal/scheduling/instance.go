package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// RecipientType classifies the recipient reference held by an instance or a
// broadcast. The engine never expands recipients; it only carries the
// reference.
type RecipientType string

const (
	RecipientUser     RecipientType = "user"
	RecipientGroup    RecipientType = "group"
	RecipientLocation RecipientType = "location"
	RecipientCase     RecipientType = "case"
)

func (r RecipientType) IsValid() bool {
	switch r {
	case RecipientUser, RecipientGroup, RecipientLocation, RecipientCase:
		return true
	}
	return false
}

// Recipient is a (type, id) reference to whoever should receive content.
type Recipient struct {
	Type RecipientType `json:"type"`
	ID   string        `json:"id"`
}

// ScheduleInstance is the live, per-recipient progress cursor through a
// schedule: which iteration, which event, when the next event is due, and
// whether the instance is still running.
//
// Instances hold a non-owning reference to their schedule; many instances
// share one schedule. The advancement functions in this package mutate the
// cursor; persistence happens outside. Two workers must never advance the
// same instance concurrently; the owning system provides that exclusion.
type ScheduleInstance struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Domain     string

	// ScheduleKind mirrors the owning schedule's kind. Denormalized so the
	// due sweep can pick a queue tier without joining the schedule.
	ScheduleKind ScheduleKind

	RecipientType RecipientType
	RecipientID   string

	// CaseID backs case-driven instances (case-property timing and reset
	// conditions). Empty otherwise.
	CaseID string

	// CurrentEventNum is the 0-based index into the schedule's events.
	CurrentEventNum int

	// ScheduleIterationNum starts at 1 and increments each time the cursor
	// wraps past the end of the event list.
	ScheduleIterationNum int

	// NextEventDue is the computed due timestamp, in UTC.
	NextEventDue time.Time

	Active bool

	// StartDate is the local start date (timed schedules only; zero for
	// alert schedules).
	StartDate time.Time

	// ScheduleRevision is the revision hash of the schedule as of the last
	// time this instance's due timestamp was computed from scratch. A
	// mismatch with the schedule's current revision means the cached due
	// timestamp must be recomputed, not merely advanced.
	ScheduleRevision string

	// LastResetCasePropertyValue tracks the watched case property for
	// reset-on-change schedules. A missing property reads as "".
	LastResetCasePropertyValue string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CopyForRecipient clones the instance's cursor state for a new recipient.
// Used when a recipient is added to an already-running alert schedule: the
// newcomer joins at the same point in the schedule instead of restarting it.
func (inst *ScheduleInstance) CopyForRecipient(recipientType RecipientType, recipientID string) *ScheduleInstance {
	out := *inst
	out.ID = uuid.New()
	out.RecipientType = recipientType
	out.RecipientID = recipientID
	return &out
}
