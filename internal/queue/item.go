package queue

import (
	"github.com/google/uuid"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// Item is the minimal data placed on the queue.
// Workers fetch the full instance and schedule from the DB using the IDs,
// keeping the queue lightweight and the stored data authoritative.
type Item struct {
	InstanceID uuid.UUID
	ScheduleID uuid.UUID
	Kind       scheduling.ScheduleKind
}
