package scheduling

import "errors"

// Sentinel errors for the scheduling engine.
//
// Configuration errors are fatal for the schedule they describe and must
// surface to the caller immediately. A sweep processing many instances is
// expected to catch them per instance; they must never abort the whole batch.
var (
	// ErrNoEvents means a schedule was asked to compute a due timestamp
	// with an empty event list. A finalized schedule always owns at least
	// one event, so this is a fatal configuration error.
	ErrNoEvents = errors.New("schedule has no events")

	// ErrInvalidMonthlyDay rejects a monthly event day of 0, above 31, or
	// below -28. Negative days count backward from month end, and every
	// month has at least 28 days, so -28 is the lowest meaningful value.
	ErrInvalidMonthlyDay = errors.New("invalid day for monthly schedule: must be 1..31 or -1..-28")

	// ErrNoValidDueDate means the monthly skip-forward loop exhausted its
	// bound without finding a month containing the event's day.
	ErrNoValidDueDate = errors.New("no valid due date found for monthly schedule")

	// ErrUnsupportedSchedule means a persisted schedule had an unrecognized
	// kind or event type.
	ErrUnsupportedSchedule = errors.New("unsupported schedule type")

	// ErrImmediateBroadcastEdit means a caller tried to edit an immediate
	// broadcast after it fired. Immediate broadcasts are one-shot; editing
	// one would corrupt already-sent state.
	ErrImmediateBroadcastEdit = errors.New("immediate broadcasts cannot be edited after creation")

	// ErrUnknownContentType means a content payload had an unrecognized type tag.
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrUnknownEventType means an event had an unrecognized type tag.
	ErrUnknownEventType = errors.New("unknown event type")
)

// Validation and storage errors. Handlers translate these to HTTP status
// codes via a single mapError function.
var (
	ErrNotFound = errors.New("not found")

	ErrEmptyBroadcastName   = errors.New("broadcast name must not be empty")
	ErrNoRecipients         = errors.New("broadcast must have at least one recipient")
	ErrInvalidRecipientType = errors.New("invalid recipient type: must be user, group, location, or case")
	ErrEmptyContent         = errors.New("content must carry at least one message variant")
	ErrMissingStartDate     = errors.New("scheduled broadcast requires a start date")

	ErrQueueFull = errors.New("queue is at capacity, try again later")
)
