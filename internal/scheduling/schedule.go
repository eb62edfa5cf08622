package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Schedule holds the fields shared by alert and timed schedules, including
// the ordered event list.
//
// Events is an immutable snapshot: repositories load the full ordered list
// when they load the schedule, and advancement functions only ever read it.
// Editing a schedule replaces the whole list atomically (old events and
// their content deleted, new ones created); it is never mutated in place.
type Schedule struct {
	ID      uuid.UUID
	Domain  string
	Active  bool
	Deleted bool

	// DefaultLanguageCode selects message text when the recipient has no
	// language preference.
	DefaultLanguageCode string

	// IncludeDescendantLocations expands location recipients to their
	// descendants. Recipient expansion itself happens outside the engine;
	// the flag is carried here because it is part of the definition.
	IncludeDescendantLocations bool

	// UserDataFilter restricts which users receive content: property name
	// to allowed values. Empty means no filtering.
	UserDataFilter map[string][]string

	// ResetCasePropertyName names a watched case property. When its value
	// changes, case-driven instances restart the schedule from the top.
	// Not part of the revision hash: a reset replays the same calendar, it
	// does not change it.
	ResetCasePropertyName string

	Events []Event
}

// RepresentativeEvent returns the event whose content stands for the whole
// schedule. Non-custom schedules store identical content on every event, so
// callers that need "the" content read it from here instead of assuming
// index 0 is special.
func (s *Schedule) RepresentativeEvent() (Event, error) {
	if len(s.Events) == 0 {
		return Event{}, ErrNoEvents
	}
	return s.Events[0], nil
}

// Env carries the per-evaluation context the recurrence math needs: the
// clock, the recipient's timezone, and the backing case (nil for instances
// not driven by a case). It is built fresh for every advancement call, so
// schedules hold no evaluation state of their own.
type Env struct {
	Clock    Clock
	Location *time.Location
	Case     Case
}

func (e Env) now() time.Time {
	if e.Clock == nil {
		return SystemClock{}.UTCNow()
	}
	return e.Clock.UTCNow()
}

func (e Env) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// InstanceScheduler is the advancement contract shared by AlertSchedule and
// TimedSchedule. Any caller that moves an instance forward (rule engine,
// periodic sweep, refresh) goes through the package-level functions below,
// which drive this interface.
type InstanceScheduler interface {
	// SetNextEventDueTimestamp computes the UTC due timestamp for the
	// instance's current (iteration, event) cursor and stores it on the
	// instance.
	SetNextEventDueTimestamp(inst *ScheduleInstance, env Env) error

	// TotalIterationsComplete reports whether the instance has run past
	// the schedule's final iteration.
	TotalIterationsComplete(inst *ScheduleInstance) bool

	// ScheduleActive reports the definition's active flag.
	ScheduleActive() bool

	// EventList returns the ordered event snapshot.
	EventList() []Event
}

// CurrentEventContent resolves the content of the instance's current event.
// It never returns an empty Content for an active instance backed by a
// well-formed schedule; an empty event list is a fatal configuration error.
func CurrentEventContent(s InstanceScheduler, inst *ScheduleInstance) (Content, error) {
	events := s.EventList()
	if len(events) == 0 {
		return Content{}, ErrNoEvents
	}
	// The cursor wraps to 0 on overflow, so it is always in range for a
	// non-empty list.
	return events[inst.CurrentEventNum].Content, nil
}

// CurrentEvent returns the event under the instance's cursor.
func CurrentEvent(s InstanceScheduler, inst *ScheduleInstance) (Event, error) {
	events := s.EventList()
	if len(events) == 0 {
		return Event{}, ErrNoEvents
	}
	return events[inst.CurrentEventNum], nil
}

// MoveToNextEvent advances the instance's cursor by one event, wrapping to
// the next iteration at the end of the event list, and recomputes the due
// timestamp. Deactivation is a side effect: once the schedule's iterations
// are exhausted the instance's active flag flips false, and callers must
// check it after every advancement.
func MoveToNextEvent(s InstanceScheduler, inst *ScheduleInstance, env Env) error {
	if len(s.EventList()) == 0 {
		return ErrNoEvents
	}

	inst.CurrentEventNum++
	if inst.CurrentEventNum >= len(s.EventList()) {
		inst.CurrentEventNum = 0
		inst.ScheduleIterationNum++
	}

	if err := s.SetNextEventDueTimestamp(inst, env); err != nil {
		return err
	}

	if s.TotalIterationsComplete(inst) {
		inst.Active = false
	}
	return nil
}

// MoveToNextEventNotInThePast fast-forwards the instance through events
// whose due time has already passed, without sending them. It stops as soon
// as the due timestamp is now-or-future or the instance goes inactive.
// This is how a process recovering from downtime catches up.
func MoveToNextEventNotInThePast(s InstanceScheduler, inst *ScheduleInstance, env Env) error {
	for inst.Active && inst.NextEventDue.Before(env.now()) {
		if err := MoveToNextEvent(s, inst, env); err != nil {
			return err
		}
	}
	return nil
}

// CheckActiveFlagAgainstSchedule reconciles the instance's active flag with
// the schedule definition's. Deactivating a schedule deactivates the
// instance in place. Reactivating fast-forwards the instance; if that runs
// it past its final iteration, it stays inactive. Returns true if the
// instance changed.
func CheckActiveFlagAgainstSchedule(s InstanceScheduler, inst *ScheduleInstance, env Env) (bool, error) {
	if inst.Active && !s.ScheduleActive() {
		inst.Active = false
		return true, nil
	}

	if !inst.Active && s.ScheduleActive() {
		if s.TotalIterationsComplete(inst) {
			return false, nil
		}
		inst.Active = true
		if err := MoveToNextEventNotInThePast(s, inst, env); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}
